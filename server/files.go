package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailored-agentic-units/pyide/workspace"
)

type fileBody struct {
	Content string `json:"content"`
}

type exportBody struct {
	Exported *bool `json:"exported"`
}

type renameBody struct {
	To string `json:"to" binding:"required"`
}

func (s *Server) listFiles(c *gin.Context) {
	sel, _ := s.workspace.Selected()
	c.JSON(http.StatusOK, gin.H{
		"files":    s.workspace.Names(),
		"selected": sel.Name,
	})
}

func (s *Server) getFile(c *gin.Context) {
	name := c.Param("name")
	content, ok := s.workspace.File(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    name,
		"content": content,
		"unsaved": s.workspace.Unsaved(name),
	})
}

// putFile replaces a buffer's content, creating and saving the file when it
// does not exist yet.
func (s *Server) putFile(c *gin.Context) {
	var body fileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := c.Param("name")
	err := s.workspace.Update(name, body.Content)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"name": name})
		return
	}
	if !errors.Is(err, workspace.ErrNotFound) {
		s.fileError(c, err)
		return
	}

	created, err := s.workspace.Create(c.Request.Context(), name, body.Content)
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": created})
}

func (s *Server) deleteFile(c *gin.Context) {
	if err := s.workspace.Delete(c.Request.Context(), c.Param("name")); err != nil {
		s.fileError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) saveFile(c *gin.Context) {
	if err := s.workspace.Save(c.Request.Context(), c.Param("name")); err != nil {
		s.fileError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// exportFile sets the export flag, or toggles it when the body omits one.
func (s *Server) exportFile(c *gin.Context) {
	var body exportBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	name := c.Param("name")
	var exported bool
	var err error
	if body.Exported != nil {
		exported = *body.Exported
		err = s.workspace.SetExported(name, exported)
	} else {
		exported, err = s.workspace.ToggleExported(name)
	}
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "exported": exported})
}

func (s *Server) renameFile(c *gin.Context) {
	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	renamed, err := s.workspace.Rename(c.Request.Context(), c.Param("name"), body.To)
	if err != nil {
		s.fileError(c, err)
		return
	}
	if !renamed {
		c.JSON(http.StatusConflict, gin.H{"error": "source missing or target exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": body.To})
}

func (s *Server) selectFile(c *gin.Context) {
	if !s.workspace.Select(c.Param("name")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) draftFile(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"name": s.workspace.Draft(c.Query("select") == "true")})
}

func (s *Server) fileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workspace.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
