package cli

// ANSI escapes used by the terminal renderers
const (
	ColorReset      = "\033[0m"
	ColorBold       = "\033[1m"
	ColorItalic     = "\033[3m"
	ColorRed        = "\033[31m"
	ColorMagenta    = "\033[35m"
	ColorGray       = "\033[90m"
	ColorOrange     = "\033[38;5;208m"
	ColorLightBrown = "\033[38;5;180m" // user input
)
