package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"neptunium/application"
	"neptunium/application/client"
	"neptunium/cmd/neptunium/chat"
	"neptunium/cmd/neptunium/config"
	"neptunium/lib/diag"
	"neptunium/protocol/packet"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func connectCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port uint16
		nick string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a chat room",
		Long: `Join a chat room and relay stdin to it line by line.

Type "/nick name" to rename yourself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return connect(ctx, cfg, logger, nick, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "server port")
	cmd.Flags().StringVarP(&nick, "nick", "n", "", "nick to use after joining")

	return cmd
}

func connect(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	nick string,
	in io.Reader,
	out io.Writer,
) error {
	packets := packet.NewRegistry()
	if err := chat.Register(packets); err != nil {
		return err
	}

	handlers := client.NewHandlers(diag.Logger{L: logger})
	if err := chat.NewPrinter(out).Install(handlers); err != nil {
		return err
	}

	c, err := application.Connect(ctx, cfg.Host, cfg.Port, cfg.Credential, packets, handlers, cfg.Application(logger))
	if err != nil {
		return errors.Wrap(err, "joining room")
	}
	defer func() {
		c.Close()
		c.Wait()
	}()
	logger.Debug("joined", "id", c.ID())

	if nick != "" {
		if err := c.Send(&chat.Nick{Name: nick}); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return errors.New("disconnected by server")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Send(chat.Parse(line)); err != nil {
				return err
			}
		}
	}
}
