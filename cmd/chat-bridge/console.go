package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/actual-software/chat-bridge/internal/realtime"
	customerrors "github.com/actual-software/chat-bridge/pkg/common/errors"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

var (
	errQuit = errors.New("quit")
	// ErrAuthenticationRequired ends a session whose credential can no longer be renewed.
	ErrAuthenticationRequired = errors.New("authentication required: run `chat-bridge login`")
)

// console renders signals as terminal lines.
type console struct {
	mu  sync.Mutex
	out io.Writer

	info   func(a ...interface{}) string
	ok     func(a ...interface{}) string
	warn   func(a ...interface{}) string
	fail   func(a ...interface{}) string
	sender func(a ...interface{}) string
}

func newConsole(out io.Writer) *console {
	return &console{
		out:    out,
		info:   color.New(color.Faint).SprintFunc(),
		ok:     color.New(color.FgGreen).SprintFunc(),
		warn:   color.New(color.FgYellow).SprintFunc(),
		fail:   color.New(color.FgRed, color.Bold).SprintFunc(),
		sender: color.New(color.FgCyan, color.Bold).SprintFunc(),
	}
}

// render prints sig. It returns an error when the signal ends the session.
func (c *console) render(sig realtime.Signal) error {
	switch sig.Kind {
	case realtime.SignalLoading:
		if sig.Loading {
			c.println(c.info(fmt.Sprintf("connecting to #%s...", sig.Channel)))
		}
	case realtime.SignalConnected:
		c.println(c.ok(fmt.Sprintf("connected to #%s", sig.Channel)))
	case realtime.SignalDisconnected:
		c.println(c.warn(describeClose(sig)))
	case realtime.SignalMessage:
		c.println(c.formatMessage(sig.Message))
	case realtime.SignalError:
		c.println(c.fail("error: ") + sig.Err.Error())

		if customerrors.IsTerminal(sig.Err) {
			return sig.Err
		}
	case realtime.SignalNeedsAuthentication:
		c.println(c.fail(ErrAuthenticationRequired.Error()))

		return ErrAuthenticationRequired
	}

	return nil
}

func describeClose(sig realtime.Signal) string {
	if sig.Reason == "" {
		return fmt.Sprintf("disconnected from #%s (code %d)", sig.Channel, sig.CloseCode)
	}

	return fmt.Sprintf("disconnected from #%s (code %d: %s)", sig.Channel, sig.CloseCode, sig.Reason)
}

func (c *console) formatMessage(msg *wire.InboundMessage) string {
	name := msg.SenderName
	if name == "" {
		name = msg.SenderID
	}

	var b strings.Builder

	if msg.Timestamp != "" {
		b.WriteString(c.info("[" + msg.Timestamp + "] "))
	}

	b.WriteString(c.sender(name))
	b.WriteString(": ")
	b.WriteString(msg.Message)

	if msg.IsFile() {
		if msg.Message != "" {
			b.WriteString(" ")
		}

		b.WriteString(c.info("[file] " + msg.File))
	}

	return b.String()
}

func (c *console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintln(c.out, line)
}

// parseInput turns one typed line into an outbound payload. Blank lines yield nil.
//
//	/quit                  leave the channel
//	/file <url> [caption]  share a file link
func parseInput(line, sender string) (*wire.OutboundMessage, error) {
	text := strings.TrimSpace(line)
	if text == "" {
		return nil, nil //nolint:nilnil // nothing to send
	}

	if !strings.HasPrefix(text, "/") {
		return wire.NewTextMessage(sender, text), nil
	}

	command, rest, _ := strings.Cut(text, " ")

	switch command {
	case "/quit", "/exit":
		return nil, errQuit
	case "/file":
		fileURL, caption, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if fileURL == "" {
			return nil, errors.New("usage: /file <url> [caption]")
		}

		return wire.NewFileMessage(sender, fileURL, strings.TrimSpace(caption)), nil
	default:
		return nil, fmt.Errorf("unknown command %s", command)
	}
}
