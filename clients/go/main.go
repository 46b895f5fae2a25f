// Command line client for the negotiation engine.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alialshehriar/bithrah-app-sub003/clients/go/bithrah"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("BITHRAH_URL")
	token := os.Getenv("BITHRAH_TOKEN")

	client := bithrah.NewClient(baseURL, token)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "open":
		requireArgs(3, "Usage: bithrah open <listing-uuid>")
		sess, err := client.Open(os.Args[2])
		exitOnError(err)
		fmt.Printf("Session %s opened, deposit %s required\n", sess.ID, sess.DepositAmount)

	case "deposit":
		requireArgs(3, "Usage: bithrah deposit <session-uuid>")
		sess, err := client.ConfirmDeposit(os.Args[2])
		exitOnError(err)
		fmt.Printf("Deposit held, negotiation active until %s\n", sess.WindowEnd.Format("2006-01-02 15:04"))

	case "say":
		requireArgs(4, "Usage: bithrah say <session-uuid> <message...>")
		resp, err := client.PostMessage(os.Args[2], strings.Join(os.Args[3:], " "))
		exitOnError(err)
		if resp.Reply != nil {
			fmt.Printf("owner: %s\n", resp.Reply.Content)
		}
		if resp.Session.AgreementReached {
			fmt.Println("Agreement reached!")
		}

	case "read":
		requireArgs(3, "Usage: bithrah read <session-uuid>")
		resp, err := client.GetMessages(os.Args[2], 50)
		exitOnError(err)
		for _, msg := range resp.Messages {
			ts := msg.CreatedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.Sender, msg.Content)
		}

	case "status":
		requireArgs(3, "Usage: bithrah status <session-uuid>")
		sess, err := client.GetSession(os.Args[2])
		exitOnError(err)
		printJSON(sess)

	case "cancel":
		requireArgs(3, "Usage: bithrah cancel <session-uuid>")
		sess, err := client.Cancel(os.Args[2])
		exitOnError(err)
		fmt.Printf("Session %s cancelled, deposit %s\n", sess.ID, sess.DepositStatus)

	case "finalize":
		requireArgs(3, "Usage: bithrah finalize <session-uuid>")
		resp, err := client.Finalize(os.Args[2])
		exitOnError(err)
		fmt.Printf("Session completed with %d settlement(s)\n", len(resp.Settlements))
		for _, s := range resp.Settlements {
			fmt.Printf("  %s: %s -> %s\n", s.Kind, s.Amount, s.BeneficiaryID)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: bithrah <command> [args]

Commands:
  health                      Check server health
  open <listing-id>           Open a negotiation on a listing
  deposit <session-id>        Confirm the deposit and activate
  say <session-id> <text>     Send a message to the counterparty
  read <session-id>           Print the transcript
  status <session-id>         Show session state
  cancel <session-id>         Cancel the negotiation
  finalize <session-id>       Complete a reached agreement

Environment:
  BITHRAH_URL     API base URL (default http://localhost:8080)
  BITHRAH_TOKEN   Bearer token (mint one with cmd/token)`)
}

func requireArgs(n int, msg string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
