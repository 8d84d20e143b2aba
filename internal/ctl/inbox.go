package ctl

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/ingest"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// InboxRow is one line of inbox list.
type InboxRow struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
}

func newInboxCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List and configure inboxes",
	}
	cmd.AddCommand(newInboxListCmd(flags), newInboxAddCmd(flags), newInboxPrimaryCmd(flags))
	return cmd
}

func newInboxListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active inboxes, effective primary first",
		Args:    cobra.NoArgs,
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

			inboxes, err := db.ListActiveInboxes(cmd.Context())
			if err != nil {
				return err
			}
			primary, hasPrimary := inbox.EffectivePrimary(inboxes)
			rows := make([]InboxRow, len(inboxes))
			for i, ib := range inboxes {
				rows[i] = InboxRow{ID: ib.ID, Address: ib.PhoneAddress, Name: ib.DisplayName, Primary: hasPrimary && ib.ID == primary.ID}
			}
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tADDRESS\tNAME\tPRIMARY")
			for _, r := range rows {
				mark := ""
				if r.Primary {
					mark = "yes"
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Address, r.Name, mark)
			}
			return tw.Flush()
		},
	}
}

func newInboxAddCmd(flags *rootFlags) *cobra.Command {
	var name string
	var primary bool
	cmd := &cobra.Command{
		Use:     "add <phone>",
		Short:   "Add or rename an inbox",
		Example: `  medconnectctl inbox add "+1 914 555 0001" --name "Mount Vernon" --primary`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := ingest.NormalizePhone(args[0])
			if addr == "" {
				return fmt.Errorf("invalid phone number %q", args[0])
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			db, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ib := &store.Inbox{PhoneAddress: addr, DisplayName: name, Active: true, Primary: primary, CreatedAt: time.Now().UnixMilli()}
			existing, err := db.ListActiveInboxes(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e.PhoneAddress == addr {
					// Keep the flag and age; only the name changes.
					ib.Primary = ib.Primary || e.Primary
					ib.CreatedAt = e.CreatedAt
					if name == "" {
						ib.DisplayName = e.DisplayName
					}
				}
			}
			id, err := db.UpsertInbox(cmd.Context(), ib)
			if err != nil {
				return err
			}
			if primary {
				if err := db.SetPrimaryInbox(cmd.Context(), id); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "inbox %d %s\n", id, addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&primary, "primary", false, "make this the primary inbox")
	return cmd
}

func newInboxPrimaryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-primary <id|phone>",
		Short: "Make an inbox the primary one, which also shows un-attributed messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			db, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			inboxes, err := db.ListActiveInboxes(cmd.Context())
			if err != nil {
				return err
			}
			id, ok := findInbox(inboxes, args[0])
			if !ok {
				return fmt.Errorf("no active inbox %q", args[0])
			}
			if err := db.SetPrimaryInbox(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "primary inbox is now %d\n", id)
			return nil
		},
	}
}

func findInbox(inboxes []store.Inbox, arg string) (int64, bool) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && len(arg) < 7 {
		for _, ib := range inboxes {
			if ib.ID == id {
				return id, true
			}
		}
	}
	addr := ingest.NormalizePhone(arg)
	for _, ib := range inboxes {
		if ib.PhoneAddress == addr {
			return ib.ID, true
		}
	}
	return 0, false
}
