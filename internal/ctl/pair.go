package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/logging"
	"github.com/sumithjoshi99/medconnect/internal/tui/views"
	"github.com/sumithjoshi99/medconnect/internal/wa"
)

func newPairCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Link a phone as the WhatsApp inbox by scanning a QR code",
		Long: `Link a phone as the WhatsApp inbox. The engine must be stopped; the
linked number is added to the inbox list once the phone confirms.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			db, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			logger, err := logging.NewFileOnly(cfg.LogPath(), cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			adapter, err := wa.NewAdapter(cmd.Context(), cfg.WASessionPath(), cfg.WhatsApp.DeviceName, logger)
			if err != nil {
				return err
			}
			defer adapter.Disconnect()

			out := cmd.OutOrStdout()
			if adapter.IsLoggedIn() {
				_, _ = fmt.Fprintf(out, "already paired as %s\n", adapter.InboxAddress())
				return nil
			}
			if !cfg.WhatsApp.Enabled {
				_, _ = fmt.Fprintln(out, "note: whatsapp.enabled is false; the engine will not connect until it is set")
			}

			br := wa.NewBridge(adapter, db, bus.New(), logger)
			events, err := br.StartQRAuth(cmd.Context())
			if err != nil {
				return fmt.Errorf("start pairing: %w", err)
			}
			for evt := range events {
				switch evt.Type {
				case wa.AuthEventQRCode:
					art, err := views.RenderQR(evt.QRCode)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "\nOpen WhatsApp > Linked devices and scan:\n\n%s\n", art)
				case wa.AuthEventAuthenticated:
					_, _ = fmt.Fprintf(out, "paired as %s\n", adapter.InboxAddress())
					return nil
				default:
					return fmt.Errorf("pairing failed: %s", evt.Message)
				}
			}
			return fmt.Errorf("pairing ended without a result")
		},
	}
}
