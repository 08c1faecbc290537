package styles

// Nerd Font icons for terminal UI.
// These icons require a Nerd Font compatible terminal font.
const (
	IconSuccess = "" // nf-fa-check (U+F00C)
	IconError   = "" // nf-fa-times (U+F00D)
	IconWarning = "" // nf-fa-exclamation_triangle (U+F071)
	IconInfo    = "" // nf-fa-info_circle (U+F05A)
	IconPending = "" // nf-fa-clock_o (U+F017)

	IconRunning = "" // nf-fa-play (U+F04B)
	IconPaused  = "" // nf-fa-pause (U+F04C)
	IconStopped = "" // nf-fa-stop (U+F04D)
	IconRemoved = "" // nf-fa-trash (U+F1F8)
	IconCreated = "" // nf-fa-plus (U+F067)

	IconBullet = "▸"
)
