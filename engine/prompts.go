package engine

// Terminal prompts and notices. ANSI styling matches the browser terminal.
const (
	PS1       = "\x1b[32;1m>>> \x1b[0m"
	PS2       = "\x1b[32m... \x1b[0m"
	RunBanner = "\x1b[3m\x1b[32m<run code>\x1b[0m"

	KeyboardInterrupt = "\nKeyboardInterrupt"

	CrashNotice          = "\nOops, something happened and we have to restart the interpreter. Don't worry, it's not your fault. You may continue once you see the prompt again.\n"
	NoSharedMemoryNotice = "\nDue to browser incompatibility, we can't stop your code execution gracefully. Instead, we'll restart the interpreter for you. Hold on yah...\n"
	RestartNotice        = "\nOkies! Restarting interpreter...\n"
)
