// Package main provides a terminal test client for the relay server. It
// speaks the game wire protocol and maps simple text commands onto client
// signifiers, printing every server message as it arrives.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
)

var (
	serverColor = color.New(color.FgCyan)
	errorColor  = color.New(color.FgRed)
	infoColor   = color.New(color.FgGreen)
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "relay server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "connecting to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	infoColor.Printf("connected to %s\n", *addr)
	printHelp()

	go readLoop(conn)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			return
		}
		if line == "help" {
			printHelp()
			continue
		}
		fields, err := parseCommand(line)
		if err != nil {
			errorColor.Println(err)
			continue
		}
		frame, err := protocol.Encode(fields)
		if err != nil {
			errorColor.Printf("encoding: %v\n", err)
			continue
		}
		if _, err := conn.Write(frame); err != nil {
			errorColor.Printf("sending: %v\n", err)
			return
		}
	}
}

// parseCommand maps a text command onto the wire fields for one message.
func parseCommand(line string) ([]string, error) {
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s needs %d argument(s)", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "create":
		if err := need(2); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientCreateAccount, args[0], args[1]), nil
	case "login":
		if err := need(2); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientLogin, args[0], args[1]), nil
	case "queue":
		if err := need(1); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientOnQueue, args[0]), nil
	case "spectate":
		if err := need(1); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientOnQueueViewer, args[0]), nil
	case "leave":
		return protocol.Message(protocol.ClientLeaveQueue), nil
	case "surrender":
		return protocol.Message(protocol.ClientSurrender), nil
	case "move":
		if err := need(1); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientMyMove, strings.Join(args, " ")), nil
	case "win":
		if err := need(1); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientPlayerWin, strings.Join(args, " ")), nil
	case "chat":
		if err := need(1); err != nil {
			return nil, err
		}
		return protocol.Message(protocol.ClientUseChatWheel, args[0]), nil
	default:
		return nil, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// readLoop prints every decoded server message until the connection closes.
func readLoop(conn net.Conn) {
	var pending []byte
	buf := make([]byte, 4096)
	for {
		fields, consumed, err := protocol.Decode(pending, 0)
		if err != nil {
			errorColor.Printf("decoding: %v\n", err)
			os.Exit(1)
		}
		if consumed > 0 {
			pending = pending[consumed:]
			printServerMessage(fields)
			continue
		}

		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		if err != nil {
			errorColor.Println("server closed the connection")
			os.Exit(0)
		}
	}
}

func printServerMessage(fields []string) {
	sig, err := protocol.Signifier(fields)
	if err != nil {
		errorColor.Printf("malformed server message %v: %v\n", fields, err)
		return
	}
	args := fields[1:]

	switch sig {
	case protocol.ServerLoginComplete:
		serverColor.Println("login complete")
	case protocol.ServerLoginFailed:
		serverColor.Println("login failed")
	case protocol.ServerAccountCreationComplete:
		serverColor.Println("account created")
	case protocol.ServerAccountCreationFailed:
		serverColor.Println("account creation failed")
	case protocol.ServerWaitForOpponent:
		serverColor.Println("waiting for an opponent")
	case protocol.ServerGameRoomCreated:
		serverColor.Printf("match started, you are %s (%s spectator(s))\n", arg(args, 0), arg(args, 1))
	case protocol.ServerYourTurn:
		serverColor.Printf("your turn, board: %s\n", strings.Join(args, protocol.Delimiter))
	case protocol.ServerUpdateForViewers:
		n := len(args)
		tag := ""
		if n > 0 {
			tag = args[n-1]
			args = args[:n-1]
		}
		serverColor.Printf("[%s] board: %s\n", tag, strings.Join(args, protocol.Delimiter))
	case protocol.ServerYouWin:
		serverColor.Println("you win")
	case protocol.ServerYouLose:
		serverColor.Printf("you lose, board: %s\n", strings.Join(args, protocol.Delimiter))
	case protocol.ServerOpponentChatWheel:
		serverColor.Printf("opponent chat: %s\n", strings.Join(args, protocol.Delimiter))
	default:
		serverColor.Printf("server message %s %v\n", strconv.Itoa(sig), args)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return "?"
}

func printHelp() {
	infoColor.Println(`commands:
  create <user> <pass>   create an account
  login <user> <pass>    log in
  queue <room>           queue for a match
  spectate <room>        watch a waiting room
  leave                  leave the queue or stop spectating
  surrender              concede the current match
  move <board>           send a move payload
  win <board>            report a win with the final board
  chat <n>               send a chat wheel entry
  quit                   exit`)
}
