package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/arnvik/lanchat/client"
	"github.com/arnvik/lanchat/config"
	"github.com/arnvik/lanchat/directory"
	"github.com/arnvik/lanchat/history"
	"github.com/arnvik/lanchat/transfer"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	nickStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
)

// console is the line-oriented collaborator on top of the client: it
// renders presence and transfer events and turns typed commands into
// client calls.
type console struct {
	client  *client.Client
	cfg     *config.Config
	history *history.History

	mu   sync.Mutex
	bars map[transfer.Key]*transferBar
}

func newConsole(c *client.Client, cfg *config.Config) *console {
	return &console{
		client:  c,
		cfg:     cfg,
		history: history.New(),
		bars:    make(map[transfer.Key]*transferBar),
	}
}

func (con *console) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errch := make(chan error, 1)
	go func() {
		errch <- con.client.Run(runCtx)
	}()

	go con.renderPresence(runCtx)
	go con.renderTransfers(runCtx)

	go con.readInput(runCtx, cancel)

	select {
	case <-runCtx.Done():
		return nil
	case err := <-errch:
		return err
	}
}

func (con *console) renderPresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-con.client.PresenceEvents():
			switch e.Kind {
			case directory.EventPeerJoined:
				fmt.Println(infoStyle.Render(fmt.Sprintf("*** %s logged on", e.User.Nick)))
			case directory.EventPeerLeft:
				fmt.Println(infoStyle.Render(fmt.Sprintf("*** %s logged off (%s)", e.User.Nick, e.Text)))
			case directory.EventPeerRenamed:
				fmt.Println(infoStyle.Render(fmt.Sprintf("*** %s is now known by that nick", e.User.Nick)))
			case directory.EventAwayChanged:
				if e.User.Away {
					fmt.Println(infoStyle.Render(fmt.Sprintf("*** %s went away: %s", e.User.Nick, e.User.AwayMsg)))
				} else {
					fmt.Println(infoStyle.Render(fmt.Sprintf("*** %s came back", e.User.Nick)))
				}
			case directory.EventTopicChanged:
				fmt.Println(infoStyle.Render(fmt.Sprintf("*** topic: %s (set by %s)", e.Topic.Text, e.Topic.Nick)))
			case directory.EventChatMessage:
				fmt.Printf("%s %s\n", nickStyle.Render("<"+e.User.Nick+">"), e.Text)
			case directory.EventPrivateMessage:
				fmt.Printf("%s %s\n", nickStyle.Render("["+e.User.Nick+"]"), e.Text)
			}
		}
	}
}

func (con *console) renderTransfers(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-con.client.TransferEvents():
			con.renderTransferEvent(e)
		}
	}
}

func (con *console) renderTransferEvent(e transfer.Event) {
	switch e.Kind {
	case transfer.EventWaiting:
		if e.Direction == transfer.DirectionReceive {
			go con.promptOffer(e)
			return
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf(
			"Offered %s (%s) to %s", e.FileName, humanize.Bytes(uint64(e.Size)), e.PeerNick)))

	case transfer.EventConnecting:
		fmt.Println(infoStyle.Render("Connecting for " + e.FileName + "..."))

	case transfer.EventProgress:
		con.bar(e).update(e)

	case transfer.EventCompleted:
		con.dropBar(e.Key)
		fmt.Println(successStyle.Render(fmt.Sprintf(
			"%s transferred (%s)", e.FileName, humanize.Bytes(uint64(e.Transferred)))))

	case transfer.EventFailed:
		con.dropBar(e.Key)
		fmt.Println(errorStyle.Render(fmt.Sprintf("%s failed: %s", e.FileName, e.Detail)))
	}
}

func (con *console) promptOffer(e transfer.Event) {
	if con.cfg.AutoAccept {
		return // the client already accepted
	}

	confirm := false
	title := fmt.Sprintf("%s wants to send %s (%s). Accept?",
		e.PeerNick, e.FileName, humanize.Bytes(uint64(e.Size)))

	huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()

	var err error
	if confirm {
		err = con.client.AcceptFile(e.Key)
	} else {
		err = con.client.RejectFile(e.Key)
	}
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
	}
}

func (con *console) bar(e transfer.Event) *transferBar {
	con.mu.Lock()
	defer con.mu.Unlock()

	b, ok := con.bars[e.Key]
	if !ok {
		b = newTransferBar(e)
		con.bars[e.Key] = b
	}
	return b
}

func (con *console) dropBar(key transfer.Key) {
	con.mu.Lock()
	defer con.mu.Unlock()

	delete(con.bars, key)
}

func (con *console) readInput(ctx context.Context, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		con.history.Add(line)

		if !strings.HasPrefix(line, "/") {
			if err := con.client.SendChat(line); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			continue
		}

		if quit := con.handleCommand(line); quit {
			cancel()
			return
		}
	}

	cancel()
}

func (con *console) handleCommand(line string) (quit bool) {
	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch cmd {
	case "quit":
		return true

	case "nick":
		err = con.client.ChangeNick(rest)

	case "topic":
		err = con.client.ChangeTopic(rest)

	case "away":
		err = con.client.SetAway(rest)

	case "back":
		err = con.client.SetBack()

	case "users":
		con.listUsers()

	case "msg":
		nick, text, _ := strings.Cut(rest, " ")
		err = con.withPeer(nick, func(u directory.User) error {
			return con.client.SendPrivate(u.Code, strings.TrimSpace(text))
		})

	case "send":
		nick, path, _ := strings.Cut(rest, " ")
		err = con.withPeer(nick, func(u directory.User) error {
			_, offerErr := con.client.OfferFile(u.Code, strings.TrimSpace(path))
			return offerErr
		})

	case "cancel":
		err = con.client.CancelTransferByName(rest)

	case "prev":
		if entry := con.history.GoUp(); entry != "" {
			fmt.Println(infoStyle.Render("history: " + entry))
		}

	case "next":
		if entry := con.history.GoDown(); entry != "" {
			fmt.Println(infoStyle.Render("history: " + entry))
		}

	default:
		err = fmt.Errorf("unknown command /%s", cmd)
	}

	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
	}
	return false
}

func (con *console) withPeer(nick string, fn func(directory.User) error) error {
	for _, u := range con.client.Users() {
		if u.Nick == nick {
			return fn(u)
		}
	}
	return fmt.Errorf("no such peer: %s", nick)
}

func (con *console) listUsers() {
	me := con.client.Me()
	fmt.Println(infoStyle.Render(fmt.Sprintf("  %s (me)", me.Nick)))

	for _, u := range con.client.Users() {
		line := "  " + u.Nick
		if u.Away {
			line += " (away: " + u.AwayMsg + ")"
		}
		if u.Writing {
			line += " *"
		}
		fmt.Println(infoStyle.Render(line))
	}

	if topic := con.client.Topic(); !topic.Empty() {
		fmt.Println(infoStyle.Render("  topic: " + topic.Text))
	}
}
