package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/sumithjoshi99/medconnect/internal/daemon"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceStatus is one health check result.
type ServiceStatus struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

// StatusInfo is what status prints.
type StatusInfo struct {
	Socket   string          `json:"socket"`
	Running  bool            `json:"running"`
	Services []ServiceStatus `json:"services,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var socket string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine and live subscription health",
		Example: `  medconnectctl status
  medconnectctl status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if socket == "" {
				cfg, err := flags.loadConfig()
				if err != nil {
					return err
				}
				socket = cfg.SocketPath()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			info := probe(ctx, socket)
			if flags.JSON {
				if err := writeJSON(cmd.OutOrStdout(), info); err != nil {
					return err
				}
			} else {
				printStatus(cmd, info)
			}
			if !info.healthy() {
				return ErrNotServing
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "engine socket (default <data_dir>/medconnectd.sock)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "health check timeout")
	return cmd
}

// probe checks the engine, the live subscription and, when registered,
// the WhatsApp inbox.
func probe(ctx context.Context, socket string) StatusInfo {
	info := StatusInfo{Socket: socket}
	conn, err := grpc.NewClient("unix://"+socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		info.Error = err.Error()
		return info
	}
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	for _, svc := range []string{"", daemon.LiveService, daemon.WhatsAppService} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		name := svc
		if name == "" {
			name = "engine"
		}
		switch {
		case status.Code(err) == codes.NotFound:
			continue
		case err != nil:
			if svc == "" {
				info.Error = err.Error()
				return info
			}
			info.Services = append(info.Services, ServiceStatus{Service: name, Status: "UNKNOWN"})
		default:
			info.Running = true
			info.Services = append(info.Services, ServiceStatus{Service: name, Status: resp.GetStatus().String()})
		}
	}
	return info
}

func (i StatusInfo) healthy() bool {
	if !i.Running {
		return false
	}
	for _, s := range i.Services {
		if s.Status != healthpb.HealthCheckResponse_SERVING.String() {
			return false
		}
	}
	return true
}

func printStatus(cmd *cobra.Command, info StatusInfo) {
	out := cmd.OutOrStdout()
	if !info.Running {
		_, _ = fmt.Fprintf(out, "engine not running (%s)\n", info.Socket)
		if info.Error != "" {
			_, _ = fmt.Fprintf(out, "  %s\n", info.Error)
		}
		return
	}
	for _, s := range info.Services {
		_, _ = fmt.Fprintf(out, "%-22s %s\n", s.Service, s.Status)
	}
}
