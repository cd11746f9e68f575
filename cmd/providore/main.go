package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lamassuiot/providore/pkg/config"
	"github.com/spf13/cobra"
)

func main() {
	command := NewProvidoreCommand()
	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	bind             string
	port             int
	ssl              string
	cert             string
	certKey          string
	certCA           string
	config           string
	firmwareStore    string
	certificateStore string
}

func (f flags) overrides() (config.Config, error) {
	cfg := config.Config{
		Bind:             f.bind,
		Port:             f.port,
		CertFile:         f.cert,
		KeyFile:          f.certKey,
		CACertFile:       f.certCA,
		ConfigDir:        f.config,
		FirmwareStore:    f.firmwareStore,
		CertificateStore: f.certificateStore,
	}
	if f.ssl != "" {
		ssl, err := strconv.ParseBool(f.ssl)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --ssl value %q", f.ssl)
		}
		cfg.Protocol = "http"
		if ssl {
			cfg.Protocol = "https"
		}
	}
	return cfg, nil
}

func NewProvidoreCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "providore",
		Short:         "Device provisioning server",
		Long:          "Serves configuration, firmware and client certificates to devices authenticated with HMAC signed requests",
		Version:       "0.0.1",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := f.overrides()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), overrides)
		},
	}

	cmd.Flags().StringVarP(&f.bind, "bind", "b", "", "IP Address to bind to")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "TCP port to listen to")
	cmd.Flags().StringVar(&f.ssl, "ssl", "", "Enable SSL (true|false)")
	cmd.Flags().StringVar(&f.cert, "cert", "", "Path to the TLS certificate. Required if SSL is enabled")
	cmd.Flags().StringVar(&f.certKey, "cert-key", "", "Path to the TLS key. Required if SSL is enabled")
	cmd.Flags().StringVar(&f.certCA, "cert-ca", "", "Path to a TLS ca cert chain used to verify client certificates")
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Folder that stores config.json, devices.json and device config files")
	cmd.Flags().StringVar(&f.firmwareStore, "firmware-store", "", "Folder that stores device firmware")
	cmd.Flags().StringVar(&f.certificateStore, "certificate-store", "", "Folder that stores device certificates")

	return cmd
}
