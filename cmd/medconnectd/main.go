package main

import (
	"flag"

	"github.com/sumithjoshi99/medconnect/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file (default ~/.medconnect/config.toml)")
	socketFlag := flag.String("socket", "", "health socket path (default <data_dir>/medconnectd.sock)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag, SocketPath: *socketFlag}),
	)

	app.Run()
}
