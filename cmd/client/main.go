package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/fortressbank/bankd/internal/transport"
)

func main() {
	primary := flag.String("primary", "127.0.0.1:1069", "primary server address")
	backup := flag.String("backup", "127.0.0.1:1070", "backup server address")
	flag.Parse()

	sess, err := connect([]string{*primary, *backup})
	if err != nil {
		fmt.Fprintln(os.Stderr, "no server available:", err)
		os.Exit(1)
	}
	defer sess.Close()

	if err := run(sess); err != nil {
		fmt.Fprintln(os.Stderr, "connection lost:", err)
		os.Exit(1)
	}
}

// connect tries the primary first and falls back to the backup, then
// negotiates a random session key.
func connect(addrs []string) (*transport.Session, error) {
	key := byte(rand.New(rand.NewSource(time.Now().UnixNano())).Intn(256))

	var lastErr error
	for _, addr := range addrs {
		fmt.Printf("Trying to connect to server at %s...\n", addr)
		conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
		if err != nil {
			fmt.Printf("Server at %s is not available, trying next server...\n", addr)
			lastErr = err
			continue
		}
		sess, err := transport.OpenClient(conn, key, 0)
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		fmt.Println("Connection was successful!")
		return sess, nil
	}
	return nil, lastErr
}

func run(sess *transport.Session) error {
	stdin := bufio.NewReader(os.Stdin)

	for {
		text, err := sess.Receive()
		if err != nil {
			return err
		}

		if strings.HasPrefix(text, transport.MarkerExit) {
			fmt.Print(strings.TrimPrefix(text, transport.MarkerExit+"\n"))
			return nil
		}

		if strings.HasPrefix(text, transport.MarkerClear) {
			clearScreen()
			text = strings.TrimPrefix(text, transport.MarkerClear+"\n")
		}

		var reply string
		if strings.HasPrefix(text, transport.MarkerPass) {
			fmt.Print(strings.TrimPrefix(strings.TrimPrefix(text, transport.MarkerPass), "\n"))
			if !strings.Contains(text, "password") {
				fmt.Print("Enter password: ")
			}
			secret, err := terminal.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return err
			}
			reply = string(secret)
		} else {
			fmt.Print(text)
			line, err := stdin.ReadString('\n')
			if err != nil {
				return err
			}
			reply = strings.TrimRight(line, "\r\n")
		}

		// The protocol has no empty frames; a bare enter becomes a space.
		if reply == "" {
			reply = " "
		}
		if err := sess.Send(reply); err != nil {
			return err
		}
	}
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
