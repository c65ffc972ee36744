package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	bencode "github.com/jackpal/bencode-go"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/config"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/magnet"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel zap.AtomicLevel

func init() {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logLevel = zapConfig.Level
	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

func main() {
	logger := zap.L()
	if len(os.Args) < 2 {
		logger.Error("Command is required", zap.String("usage", "mybittorrent <command> [args]"))
		os.Exit(1)
	}
	command := os.Args[1]

	switch command {
	case "decode":
		if err := handleDecode(os.Args); err != nil {
			logger.Error("Failed to decode", zap.Error(err))
			os.Exit(1)
		}
	case "info":
		if err := handleInfo(os.Args); err != nil {
			logger.Error("Failed to get info", zap.Error(err))
			os.Exit(1)
		}
	case "peers":
		if err := handlePeers(os.Args); err != nil {
			logger.Error("Failed to get peers", zap.Error(err))
			os.Exit(1)
		}
	case "scrape":
		if err := handleScrape(os.Args); err != nil {
			logger.Error("Failed to scrape", zap.Error(err))
			os.Exit(1)
		}
	case "resolve":
		if err := handleResolve(os.Args); err != nil {
			logger.Error("Failed to resolve tracker", zap.Error(err))
			os.Exit(1)
		}
	case "magnet_parse":
		if err := handleMagnetParse(os.Args); err != nil {
			logger.Error("Failed to parse magnet link", zap.Error(err))
			os.Exit(1)
		}
	case "magnet_peers":
		if err := handleMagnetPeers(os.Args); err != nil {
			logger.Error("Failed to get magnet peers", zap.Error(err))
			os.Exit(1)
		}
	default:
		logger.Error("Unknown command", zap.String("command", command))
		os.Exit(1)
	}
}

// commandArgs holds the flags shared by the tracker commands and the remaining
// positional arguments.
type commandArgs struct {
	configPath string
	event      tracker.Event
	positional []string
}

func parseArgs(args []string) (commandArgs, error) {
	var out commandArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "-e":
			if i+1 >= len(args) {
				return out, fmt.Errorf("flag %s needs a value", args[i])
			}
			if args[i] == "-c" {
				out.configPath = args[i+1]
			} else {
				e, err := tracker.ParseEvent(args[i+1])
				if err != nil {
					return out, err
				}
				out.event = e
			}
			i++
		default:
			out.positional = append(out.positional, args[i])
		}
	}
	return out, nil
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	lvl, err := cfg.Level()
	if err != nil {
		return cfg, err
	}
	logLevel.SetLevel(lvl)
	return cfg, nil
}

func trackerOptions(cfg config.Config) []tracker.Option {
	return []tracker.Option{
		tracker.WithLogger(zap.L()),
		tracker.WithTimeout(cfg.Timeout),
	}
}

// Command handlers

func handleDecode(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: decode <bencoded-value>")
	}
	decoded, err := bencode.Decode(strings.NewReader(args[2]))
	if err != nil {
		return err
	}
	jsonOutput, err := json.Marshal(decoded)
	if err != nil {
		return err
	}
	fmt.Println(string(jsonOutput))
	return nil
}

func handleInfo(args []string) error {
	logger := zap.L()
	if len(args) < 3 {
		logger.Error("File path is required for info command")
		return fmt.Errorf("file path required")
	}

	torrent, err := metainfo.Load(args[2])
	if err != nil {
		logger.Error("Failed to load torrent", zap.Error(err))
		return err
	}
	hash, err := torrent.InfoHash()
	if err != nil {
		logger.Error("Failed to hash info", zap.Error(err))
		return err
	}

	fmt.Printf("Tracker URL: %s\n", torrent.Announce)
	fmt.Printf("Length: %d\n", torrent.Info.TotalLength())
	fmt.Printf("Info Hash: %s\n", hash)
	fmt.Printf("Piece Length: %d\n", torrent.Info.PieceLength)
	if torrent.Info.Private != nil && *torrent.Info.Private == 1 {
		fmt.Println("Private: yes")
	}

	if len(torrent.AnnounceList) > 0 {
		tiers, err := torrent.AnnounceList.Tiers()
		if err != nil {
			return err
		}
		fmt.Println("Announce List:")
		for i, tier := range tiers {
			for _, u := range tier {
				fmt.Printf("  tier %d: %s\n", i, u)
			}
		}
	}

	fmt.Println("Piece Hashes:")
	for i := 0; i < torrent.Info.PieceCount(); i++ {
		pieceHash, err := torrent.Info.PieceHash(i)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", pieceHash)
	}
	return nil
}

func handlePeers(args []string) error {
	opts, err := parseArgs(args[2:])
	if err != nil {
		return err
	}
	if len(opts.positional) != 1 {
		return fmt.Errorf("usage: peers [-c <config>] [-e <event>] <torrent-file>")
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	torrent, err := metainfo.Load(opts.positional[0])
	if err != nil {
		return err
	}
	hash, err := torrent.InfoHash()
	if err != nil {
		return err
	}

	peers, err := announce(cfg, torrent.Announce, hash, torrent.Info.TotalLength(), opts.event)
	if err != nil {
		return err
	}
	for _, peer := range peers {
		fmt.Println(peer)
	}
	return nil
}

func handleScrape(args []string) error {
	opts, err := parseArgs(args[2:])
	if err != nil {
		return err
	}
	if len(opts.positional) != 1 {
		return fmt.Errorf("usage: scrape [-c <config>] <torrent-file>")
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	torrent, err := metainfo.Load(opts.positional[0])
	if err != nil {
		return err
	}
	hash, err := torrent.InfoHash()
	if err != nil {
		return err
	}

	t, err := tracker.New(torrent.Announce, trackerOptions(cfg)...)
	if err != nil {
		return err
	}
	scraper, ok := t.(tracker.Scraper)
	if !ok {
		return fmt.Errorf("%w: %s", tracker.ErrScrapeUnsupported, t.URL())
	}
	stats, err := scraper.Scrape(context.Background(), []metainfo.InfoHash{hash})
	if err != nil {
		return err
	}

	fmt.Printf("Seeders: %d\n", stats[0].Seeders)
	fmt.Printf("Leechers: %d\n", stats[0].Leechers)
	fmt.Printf("Completed: %d\n", stats[0].Completed)
	return nil
}

func handleResolve(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: resolve <torrent-file>")
	}
	torrent, err := metainfo.Load(args[2])
	if err != nil {
		return err
	}

	addrs, err := torrent.AnnounceAddrs(context.Background(), nil)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

func handleMagnetParse(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: magnet_parse <magnet-link>")
	}

	link, err := magnet.Parse(args[2])
	if err != nil {
		return fmt.Errorf("failed to parse magnet link: %w", err)
	}
	urls, err := link.TrackerURLs()
	if err != nil {
		return err
	}

	fmt.Printf("Tracker URL: %s\n", urls[0])
	fmt.Printf("Info Hash: %s\n", link.InfoHash)
	return nil
}

func handleMagnetPeers(args []string) error {
	opts, err := parseArgs(args[2:])
	if err != nil {
		return err
	}
	if len(opts.positional) != 1 {
		return fmt.Errorf("usage: magnet_peers [-c <config>] <magnet-link>")
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	link, err := magnet.Parse(opts.positional[0])
	if err != nil {
		return fmt.Errorf("failed to parse magnet link: %w", err)
	}
	urls, err := link.TrackerURLs()
	if err != nil {
		return err
	}

	// The size is unknown until the metadata is fetched; trackers only need left > 0.
	peers, err := announce(cfg, urls[0].String(), link.InfoHash, 1, opts.event)
	if err != nil {
		return err
	}
	for _, peer := range peers {
		fmt.Println(peer)
	}
	return nil
}

func announce(cfg config.Config, trackerURL string, hash metainfo.InfoHash, left int64, event tracker.Event) ([]tracker.Peer, error) {
	logger := zap.L()

	peerID, err := cfg.ResolvePeerID(rand.Reader)
	if err != nil {
		return nil, err
	}
	t, err := tracker.New(trackerURL, trackerOptions(cfg)...)
	if err != nil {
		return nil, err
	}

	resp, err := t.Announce(context.Background(), tracker.AnnounceRequest{
		InfoHash: hash,
		PeerID:   peerID,
		Port:     cfg.Port,
		Left:     left,
		Event:    event,
		NumWant:  cfg.NumWant,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Announced",
		zap.String("tracker", t.URL()),
		zap.Duration("interval", resp.Interval),
		zap.Int32("seeders", resp.Seeders),
		zap.Int32("leechers", resp.Leechers))
	return resp.Peers, nil
}
