// Command inspect dumps raw keys and values from an agentboard store for
// operator debugging. The server must not be running against the same DB.
package main

import (
	"flag"
	"fmt"
	"os"

	"agentboard/pkg/store"
)

func main() {
	var (
		path   = flag.String("path", "", "pebble store path (required)")
		prefix = flag.String("prefix", "", "key prefix filter (e.g. notif:, sub:)")
		key    = flag.String("key", "", "print the value of a single key and exit")
		agent  = flag.String("agent", "", "dump one agent's notifications in creation order and exit")
		values = flag.Bool("values", false, "print values alongside keys")
	)
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}
	if err := store.Open(*path); err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *agent != "" {
		ids, err := store.ListAgentNotificationIDs(*agent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list agent notifications: %v\n", err)
			os.Exit(1)
		}
		for _, id := range ids {
			if *values {
				v, err := store.GetNotification(id)
				if err != nil {
					fmt.Printf("%s\t<error: %v>\n", id, err)
					continue
				}
				fmt.Printf("%s\t%s\n", id, v)
			} else {
				fmt.Println(id)
			}
		}
		fmt.Fprintf(os.Stderr, "%d notifications for %s\n", len(ids), *agent)
		return
	}

	if *key != "" {
		v, err := store.GetKey(*key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get %s: %v\n", *key, err)
			os.Exit(1)
		}
		fmt.Println(v)
		return
	}

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if *values {
			v, err := store.GetKey(k)
			if err != nil {
				fmt.Printf("%s\t<error: %v>\n", k, err)
				continue
			}
			fmt.Printf("%s\t%s\n", k, v)
		} else {
			fmt.Println(k)
		}
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
