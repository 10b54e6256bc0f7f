// Command xdagnode is the process entrypoint: it wires the channel
// manager, the Kademlia DHT, and DNS-tree discovery into one running
// p2p.Server and blocks until interrupted.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/discover"
	"github.com/XDagger/xdagj-p2p-go/dnsdisc"
	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
	"github.com/XDagger/xdagj-p2p-go/p2p"
)

var mainLog = xlog.New("cmd/xdagnode")

var (
	portFlag = cli.IntFlag{
		Name:  "p",
		Usage: "TCP listen port for the peer protocol",
		Value: 10000,
	}
	discoveryFlag = cli.IntFlag{
		Name:  "d",
		Usage: "enable Kademlia/UDP discovery (0 or 1)",
		Value: 1,
	}
	seedsFlag = cli.StringFlag{
		Name:  "s",
		Usage: "comma-separated host:port TCP seed nodes to dial at startup",
	}
	activeFlag = cli.StringFlag{
		Name:  "a",
		Usage: "comma-separated host:port UDP active nodes seeded into the routing table",
	}
	urlSchemesFlag = cli.StringFlag{
		Name:  "url-schemes",
		Usage: "comma-separated enrtree:// URLs to sync for DNS-tree discovery",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "optional LevelDB directory for the persisted node cache (empty disables it)",
	}
	maxPeersFlag = cli.IntFlag{
		Name:  "max-peers",
		Usage: "overall channel table cap",
		Value: 64,
	}
	maxPeersPerIPFlag = cli.IntFlag{
		Name:  "max-peers-per-ip",
		Usage: "per-IP channel cap",
		Value: 3,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "xdagnode"
	app.Usage = "XDAG-style peer-to-peer node"
	app.Flags = []cli.Flag{
		portFlag, discoveryFlag, seedsFlag, activeFlag, urlSchemesFlag,
		dataDirFlag, maxPeersFlag, maxPeersPerIPFlag,
	}
	app.Action = run

	xlog.Init(logrus.InfoLevel, false)
	if err := app.Run(os.Args); err != nil {
		mainLog.WithField("err", err).Error("fatal startup error")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	identity, err := crypto.GenerateIdentity()
	if err != nil {
		return fmt.Errorf("generate node identity: %w", err)
	}
	mainLog.WithField("address", identity.Address().String()).Info("node identity")

	cfg := p2p.DefaultConfig()
	cfg.ListenAddr = fmt.Sprintf(":%d", c.Int(portFlag.Name))
	cfg.MaxConnections = c.Int(maxPeersFlag.Name)
	cfg.MaxConnectionsWithSameIP = c.Int(maxPeersPerIPFlag.Name)
	cfg.DataDir = c.String(dataDirFlag.Name)

	var nodeDB *enode.DB
	if cfg.DataDir != "" {
		nodeDB, err = enode.OpenDB(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open node cache at %q: %w", cfg.DataDir, err)
		}
	}

	sources, udpTransport, table, err := buildSources(c, identity, cfg, nodeDB)
	if err != nil {
		return err
	}
	if len(parseCSV(c.String(seedsFlag.Name))) > 0 {
		sources = append(sources, staticTCPSource(c.String(seedsFlag.Name)))
	}

	server := p2p.NewServer(cfg, identity, sources, nodeDB)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start p2p server: %w", err)
	}
	mainLog.WithField("addr", cfg.ListenAddr).Info("xdagnode running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	mainLog.Info("shutting down")
	if table != nil {
		table.Close()
	}
	if udpTransport != nil {
		udpTransport.Close()
	}
	server.Stop()
	return nil
}

// buildSources wires the discovery (C7) and DNS-tree (C8) dial-candidate
// sources per the -d and --url-schemes flags; either or both may be
// disabled, in which case the returned value is nil.
func buildSources(c *cli.Context, identity *crypto.Identity, cfg *p2p.Config, nodeDB *enode.DB) ([]p2p.NodeSource, *discover.UDPTransport, *discover.Table, error) {
	var sources []p2p.NodeSource

	var udpTransport *discover.UDPTransport
	var table *discover.Table
	if c.Int(discoveryFlag.Name) != 0 {
		port := c.Int(portFlag.Name)
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("listen udp :%d: %w", port, err)
		}
		self := enode.New(
			enode.ID(crypto.PubkeyToRoutingID(identity.PublicKey())),
			identity.Address(), nil, nil, uint16(port),
			cfg.NetworkID, cfg.NetworkVersion, mclock.System{}.Now(),
		)
		bootnodes := parseUDPSeeds(c.String(activeFlag.Name), cfg.NetworkID, cfg.NetworkVersion)

		udpTransport = discover.ListenUDP(conn, self, mclock.System{})
		table = discover.NewTable(self, udpTransport, nodeDB, mclock.System{}, bootnodes)
		udpTransport.Serve(table)
		table.Start()
		sources = append(sources, table)
	}

	if urls := parseCSV(c.String(urlSchemesFlag.Name)); len(urls) > 0 {
		client := dnsdisc.NewClient(nil)
		it := dnsdisc.NewRandomIterator(time.Now().UnixNano())
		for _, url := range urls {
			if _, err := client.SyncTree(context.Background(), url); err != nil {
				mainLog.WithField("url", url).WithField("err", err).Error("dns tree sync failed")
				continue
			}
			it.AddTree(client, url)
		}
		sources = append(sources, dnsdisc.NewSource(it))
	}

	return sources, udpTransport, table, nil
}

// staticTCPSource parses the -s seed list into a fixed NodeSource; seeds
// have no known node ID, so the dial pool admits them purely by address.
func staticTCPSource(csv string) p2p.NodeSource {
	var records p2p.StaticSource
	for _, hostport := range parseCSV(csv) {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			mainLog.WithField("seed", hostport).WithField("err", err).Error("skipping malformed tcp seed")
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			mainLog.WithField("seed", hostport).WithField("err", err).Error("skipping malformed tcp seed port")
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil {
			ips, err := net.LookupIP(host)
			if err != nil || len(ips) == 0 {
				mainLog.WithField("seed", hostport).Error("skipping unresolvable tcp seed")
				continue
			}
			ip = ips[0]
		}
		var ip4, ip6 net.IP
		if v4 := ip.To4(); v4 != nil {
			ip4 = v4
		} else {
			ip6 = ip
		}
		records = append(records, enode.New(enode.ID{}, crypto.Address{}, ip4, ip6, uint16(port), 0, 0, mclock.System{}.Now()))
	}
	return records
}

func parseUDPSeeds(csv string, networkID uint8, networkVersion uint16) []*enode.Record {
	var out []*enode.Record
	for _, hostport := range parseCSV(csv) {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			mainLog.WithField("seed", hostport).WithField("err", err).Error("skipping malformed udp seed")
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil {
			continue
		}
		var ip4, ip6 net.IP
		if v4 := ip.To4(); v4 != nil {
			ip4 = v4
		} else {
			ip6 = ip
		}
		out = append(out, enode.New(enode.ID{}, crypto.Address{}, ip4, ip6, uint16(port), networkID, networkVersion, mclock.System{}.Now()))
	}
	return out
}

func parseCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
