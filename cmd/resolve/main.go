// Command resolve issues a single query against an upstream server through
// the resolver package's event loop (server pool, retries, caching, and
// NAPTR/SRV/A chasing) and prints the result.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/logging"
	"github.com/jroosing/resolverd/internal/resolver"
)

func main() {
	var (
		server     = flag.String("server", "8.8.8.8:53", "upstream DNS server HOST:PORT")
		name       = flag.String("name", "", "owner name to query (required)")
		qtypeFlag  = flag.String("qtype", "A", "record type: A, SRV, NAPTR, or a numeric type")
		timeout    = flag.Duration("timeout", 3*time.Second, "per-server response timeout")
		resolveAll = flag.Bool("resolve-all", false, "follow the NAPTR -> SRV -> A chain")
		verbose    = flag.Bool("v", false, "enable debug logging")
		quiet      = flag.Bool("quiet", false, "suppress human-readable output; only the exit status matters")
	)
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "resolve: -name is required")
		os.Exit(2)
	}

	level := "WARN"
	if *verbose {
		level = "DEBUG"
	}
	logger := logging.Configure(logging.Config{Level: level})

	qtype, err := parseQType(*qtypeFlag)
	if err != nil {
		fatal(*quiet, err)
	}

	host, port, err := splitHostPort(*server)
	if err != nil {
		fatal(*quiet, err)
	}

	cfg := resolver.DefaultConfig()
	cfg.Servers = []resolver.ServerConfig{{IP: host, Port: port, Priority: 1}}
	cfg.WaitResponseMS = int(timeout.Milliseconds())
	cfg.MaxAllowedServerPerQuery = 1
	if err := cfg.Normalize(); err != nil {
		fatal(*quiet, err)
	}

	transport, err := resolver.NewUDPTransport("", logger)
	if err != nil {
		fatal(*quiet, fmt.Errorf("opening UDP transport: %w", err))
	}
	timerSvc := resolver.NewWallTimerService()

	res, err := resolver.New(cfg, transport, timerSvc, logger)
	if err != nil {
		fatal(*quiet, fmt.Errorf("starting resolver: %w", err))
	}
	defer res.Close()

	replies := make(chan resolver.Response, 1)
	status, err := res.Query(*name, qtype, *resolveAll, false, func(resp resolver.Response, _ any) {
		replies <- resp
	}, nil)
	if err != nil {
		fatal(*quiet, err)
	}
	if status == resolver.Fail {
		fatal(*quiet, fmt.Errorf("query rejected"))
	}

	select {
	case resp := <-replies:
		printResponse(*quiet, resp)
		if !resp.IsNoError() {
			os.Exit(1)
		}
	case <-time.After(*timeout + 2*time.Second):
		fatal(*quiet, fmt.Errorf("timed out waiting for resolver"))
	}
}

func fatal(quiet bool, err error) {
	if !quiet {
		fmt.Fprintf(os.Stderr, "resolve: %v\n", err)
	}
	os.Exit(1)
}

func parseQType(s string) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return uint16(dns.TypeA), nil
	case "AAAA":
		return uint16(dns.TypeAAAA), nil
	case "SRV":
		return uint16(dns.TypeSRV), nil
	case "NAPTR":
		return uint16(dns.TypeNAPTR), nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unrecognized -qtype %q", s)
	}
	return uint16(n), nil
}

func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("-server must be HOST:PORT: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("-server has an invalid port: %w", err)
	}
	return host, uint16(port), nil
}

func printResponse(quiet bool, resp resolver.Response) {
	if quiet {
		return
	}
	switch resp.Kind {
	case resolver.KindMsg:
		printPacket(resp.Msg)
	case resolver.KindMsgList:
		for i, msg := range resp.List {
			fmt.Printf("--- hop %d ---\n", i+1)
			printPacket(msg)
		}
	case resolver.KindStatus:
		fmt.Printf("status: %s\n", resp.Status)
	}
}

func printPacket(msg dns.Packet) {
	fmt.Printf("rcode: %d, answers: %d\n", dns.RCodeFromFlags(msg.Header.Flags), len(msg.Answers))
	for _, rr := range msg.Answers {
		fmt.Println(formatRR(rr))
	}
}

func formatRR(rr dns.Record) string {
	switch dns.RecordType(rr.Type) {
	case dns.TypeA, dns.TypeAAAA:
		if ip, ok := rr.Data.([]byte); ok {
			return fmt.Sprintf("%s\t%d\tIN\t%s\t%s", rr.Name, rr.TTL, typeName(rr.Type), net.IP(ip).String())
		}
	case dns.TypeSRV:
		if srv, ok := rr.SRV(); ok {
			return fmt.Sprintf("%s\t%d\tIN\tSRV\t%d %d %d %s", rr.Name, rr.TTL, srv.Priority, srv.Weight, srv.Port, srv.Target)
		}
	case dns.TypeNAPTR:
		if naptr, ok := rr.NAPTR(); ok {
			return fmt.Sprintf("%s\t%d\tIN\tNAPTR\t%d %d %q %q %q %s",
				rr.Name, rr.TTL, naptr.Order, naptr.Preference, naptr.Flag, naptr.Service, naptr.Regexp, naptr.Replacement)
		}
	case dns.TypeCNAME, dns.TypeNS, dns.TypePTR:
		if s, ok := rr.Data.(string); ok {
			return fmt.Sprintf("%s\t%d\tIN\t%s\t%s", rr.Name, rr.TTL, typeName(rr.Type), s)
		}
	}
	return fmt.Sprintf("%s\t%d\tIN\t%s\t%v", rr.Name, rr.TTL, typeName(rr.Type), rr.Data)
}

func typeName(t uint16) string {
	switch dns.RecordType(t) {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	case dns.TypeNS:
		return "NS"
	case dns.TypeCNAME:
		return "CNAME"
	case dns.TypePTR:
		return "PTR"
	case dns.TypeSRV:
		return "SRV"
	case dns.TypeNAPTR:
		return "NAPTR"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}
