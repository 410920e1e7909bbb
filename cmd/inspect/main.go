package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"/tmp/chat-hub/badger"`
}

// storedMessage mirrors the on-disk layout of a message record.
type storedMessage struct {
	ID        string          `json:"id"`
	SenderID  string          `json:"sender_id"`
	ChatType  domain.ChatType `json:"chat_type"`
	Text      string          `json:"text"`
	At        int64           `json:"at"`
	Status    int             `json:"status"`
	SeenBy    []string        `json:"seen_by"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Config error: ", err)
	}

	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Chat", "Timestamp", "Sender", "Status", "Seen", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Secondary indexes hold key references, not records
			key := string(item.Key())
			if strings.HasPrefix(key, "id:") || strings.HasPrefix(key, "unread:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var m storedMessage
				if err := json.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}

				text := m.Text
				if runes := []rune(text); len(runes) > 40 {
					text = string(runes[:40]) + "..."
				}

				table.Append([]string{
					key,
					string(m.ChatType),
					time.Unix(0, m.At).UTC().Format("15:04:05"),
					m.SenderID,
					statusLabel(domain.Status(m.Status)),
					fmt.Sprintf("%d", len(m.SeenBy)),
					text,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusRead:
		return color.Green.Sprint(s)
	case domain.StatusDelivered:
		return color.Yellow.Sprint(s)
	default:
		return color.Gray.Sprint(s)
	}
}
