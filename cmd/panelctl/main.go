package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/panelctl"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "apply":
		fs := flag.NewFlagSet("apply", flag.ExitOnError)
		file := fs.String("f", "", "Path to host definition YAML file (required)")
		timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for async operations")
		fs.Parse(os.Args[2:])

		if *file == "" {
			fmt.Fprintln(os.Stderr, "Error: -f flag is required")
			fs.Usage()
			os.Exit(1)
		}
		if err := panelctl.Apply(*file, *timeout, os.Stdout); err != nil {
			fail(err)
		}

	case "services":
		client := clientFromFlags("services", os.Args[2:])
		var list []model.ManagedService
		if err := client.Get("/services", &list); err != nil {
			fail(err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tINSTALLED\tRUNNING\tLAST ERROR")
		for _, s := range list {
			installed := "-"
			if s.Installed {
				installed = strings.Join(s.InstalledVersions, ",")
			}
			running := "-"
			if s.Running {
				running = strings.Join(s.RunningVersions, ",")
				if running == "" {
					running = "yes"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Type, installed, running, s.LastError)
		}
		tw.Flush()

	case "install", "uninstall":
		fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		version := fs.String("version", "", "Version (default: catalog default)")
		timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for the operation")
		client := clientFlags(fs)
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "Usage: panelctl %s [-version V] <service-id>\n", os.Args[1])
			os.Exit(1)
		}
		var op model.Operation
		if err := client().Post("/services/"+fs.Arg(0)+"/"+os.Args[1], map[string]string{"version": *version}, &op); err != nil {
			fail(err)
		}
		fmt.Printf("Operation %s accepted, waiting...\n", op.ID)
		if _, err := client().AwaitOperation(op.ID, *timeout); err != nil {
			fail(err)
		}
		fmt.Printf("%s of %s finished\n", os.Args[1], fs.Arg(0))

	case "start", "stop", "restart":
		fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		version := fs.String("version", "", "Version (default: installed default)")
		client := clientFlags(fs)
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "Usage: panelctl %s [-version V] <service-id>\n", os.Args[1])
			os.Exit(1)
		}
		var svc model.ManagedService
		if err := client().Post("/services/"+fs.Arg(0)+"/"+os.Args[1], map[string]string{"version": *version}, &svc); err != nil {
			fail(err)
		}
		fmt.Printf("%s: running=%t %s\n", svc.ID, svc.Running, svc.LastError)

	case "ops":
		client := clientFromFlags("ops", os.Args[2:])
		var list []model.Operation
		if err := client.Get("/operations", &list); err != nil {
			fail(err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tTARGET\tSTATE\tPROGRESS\tERROR")
		for _, op := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n", op.ID, op.Kind, op.Target, op.State, op.Progress, op.Error)
		}
		tw.Flush()

	case "activity":
		fs := flag.NewFlagSet("activity", flag.ExitOnError)
		limit := fs.Int("limit", 20, "Number of entries")
		client := clientFlags(fs)
		fs.Parse(os.Args[2:])
		var list []model.Activity
		if err := client().Get(fmt.Sprintf("/activity?limit=%d", *limit), &list); err != nil {
			fail(err)
		}
		for _, a := range list {
			fmt.Printf("%s  %-8s %-8s %-10s %s\n", a.Timestamp.Local().Format(time.DateTime), a.Type, a.Status, a.Actor, a.Title)
		}

	case "firewall-check":
		fs := flag.NewFlagSet("firewall-check", flag.ExitOnError)
		proto := fs.String("protocol", model.ProtocolTCP, "tcp or udp")
		client := clientFlags(fs)
		fs.Parse(os.Args[2:])
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: panelctl firewall-check [-protocol tcp|udp] <source-ip> <port>")
			os.Exit(1)
		}
		var port int
		if _, err := fmt.Sscan(fs.Arg(1), &port); err != nil {
			fail(fmt.Errorf("invalid port %q", fs.Arg(1)))
		}
		var d json.RawMessage
		body := map[string]any{"source": fs.Arg(0), "port": port, "protocol": *proto}
		if err := client().Post("/firewall/evaluate", body, &d); err != nil {
			fail(err)
		}
		fmt.Println(string(d))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// clientFlags registers the connection flags on fs. The returned func is
// valid after fs.Parse.
func clientFlags(fs *flag.FlagSet) func() *panelctl.Client {
	apiURL := fs.String("api", envOr("PANEL_API_URL", "http://localhost:8090"), "Panel API base URL")
	token := fs.String("token", os.Getenv(panelctl.TokenEnv), "API token")
	var c *panelctl.Client
	return func() *panelctl.Client {
		if c == nil {
			c = panelctl.NewClient(*apiURL, *token)
		}
		return c
	}
}

func clientFromFlags(name string, args []string) *panelctl.Client {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	client := clientFlags(fs)
	fs.Parse(args)
	return client()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  panelctl apply -f <host.yaml>
  panelctl services
  panelctl install|uninstall [-version V] <service-id>
  panelctl start|stop|restart [-version V] <service-id>
  panelctl ops
  panelctl activity [-limit N]
  panelctl firewall-check [-protocol tcp|udp] <source-ip> <port>

Commands:
  apply            Install services, deploy apps and create certificates, cron jobs
                   and firewall rules from a YAML definition
  services         List managed services and their state
  install          Install a service version and wait for the operation
  ops              List tracked operations
  activity         Show the activity feed
  firewall-check   Show which rule decides a connection

Flags:
  -api string       Panel API base URL (default: $PANEL_API_URL or http://localhost:8090)
  -token string     API token (default: $PANEL_API_TOKEN)
  -timeout duration Timeout for async operations (default: 10m)`)
}
