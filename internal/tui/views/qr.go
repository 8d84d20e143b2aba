package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// RenderQR draws content as a QR code using half-block characters, two
// modules per character row.
func RenderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}

// PairView shows the WhatsApp pairing QR code and its progress.
type PairView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPairView creates the pairing overlay.
func NewPairView(theme *ui.Theme) *PairView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Pair WhatsApp inbox ")
	tv.SetTitleColor(theme.TitleColor)
	return &PairView{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (pv *PairView) Name() string { return "Pair" }

// Hints implements ui.Component.
func (pv *PairView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Cancel"}}
}

// ShowQR renders a pairing code.
func (pv *PairView) ShowQR(code string) {
	pv.Clear()
	art, err := RenderQR(code)
	if err != nil {
		pv.ShowMessage(err.Error())
		return
	}
	_, _ = fmt.Fprintf(pv, "\nOpen WhatsApp > Linked devices and scan:\n\n%s\n[::d]Waiting for the phone...[-:-:-]", art)
}

// ShowMessage replaces the view with a line of text.
func (pv *PairView) ShowMessage(msg string) {
	pv.Clear()
	_, _ = fmt.Fprintf(pv, "\n\n%s", tview.Escape(msg))
}
