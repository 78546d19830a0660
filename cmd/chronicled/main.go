// Command chronicled is a demo wiring of an RSM host and a failover
// coordinator against the in-memory fake collaborators, the way the
// donor's cmd bootstraps a Manager against a mockCluster for local
// smoke-testing. It is not meant to run as a real service: it seeds a
// two-node in-memory cluster, drives a handful of kv commands against the
// leader, and exercises one failover/cancel cycle before exiting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	logging "github.com/op/go-logging"

	"github.com/timofey-barmin/chronicle/collab/fake"
	"github.com/timofey-barmin/chronicle/examples/kvmodule"
	"github.com/timofey-barmin/chronicle/failover"
	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/revtable"
	"github.com/timofey-barmin/chronicle/rsm"
)

// cliVars mirrors the donor's pattern of a single struct of flag-backed
// settings built once in main, rather than package-level flag vars spread
// across files.
type cliVars struct {
	rsmName     string
	commandWait time.Duration
	logLevel    string
}

func parseFlags() cliVars {
	v := cliVars{}
	flag.StringVar(&v.rsmName, "rsm-name", "demo-kv", "name of the replicated state machine to host")
	flag.DurationVar(&v.commandWait, "command-timeout", 2*time.Second, "per-command client timeout")
	flag.StringVar(&v.logLevel, "log-level", "INFO", "go-logging level for all package loggers")
	flag.Parse()
	return v
}

func main() {
	vars := parseFlags()
	configureLogging(vars.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	selfID := revision.PeerID("node-a")
	peerID := revision.PeerID("node-b")
	bootstrapHistory := revision.HistoryID("bootstrap")
	self := fake.NewCluster(selfID, bootstrapHistory)
	peer := fake.NewCluster(peerID, bootstrapHistory)
	self.Join(peer)

	table := revtable.New()
	host := rsm.New(vars.rsmName, selfID, kvmodule.New(), nil, self, self, self, table)
	go func() {
		if err := host.Run(ctx); err != nil {
			logging.MustGetLogger("chronicled").Error("host terminated: %v", err)
		}
	}()

	coordinator := failover.New(selfID, self)
	go coordinator.Run(ctx)

	runDemo(ctx, vars, host, coordinator, selfID, peerID)

	host.Stop()
	<-host.Done()
	coordinator.Stop()
	<-coordinator.Done()
}

func runDemo(ctx context.Context, vars cliVars, host *rsm.Host, coordinator *failover.Coordinator, self, peer revision.PeerID) {
	logger := logging.MustGetLogger("chronicled")

	set := kvmodule.Command{Op: kvmodule.OpSet, Key: "hello", Value: "world"}
	if _, err := host.Command(ctx, set, vars.commandWait); err != nil {
		logger.Error("set failed: %v", err)
		return
	}

	reply, err := host.Query(ctx, kvmodule.Command{Op: kvmodule.OpGet, Key: "hello"}, vars.commandWait)
	if err != nil {
		logger.Error("get failed: %v", err)
		return
	}
	got := reply.(kvmodule.Reply)
	fmt.Printf("hello = %q (found=%v)\n", got.Value, got.Found)

	branch, err := coordinator.Failover(ctx, []revision.PeerID{self, peer}, "demo failover")
	if err != nil {
		logger.Error("failover failed: %v", err)
		return
	}
	fmt.Printf("installed branch %s (was %s)\n", branch.HistoryID, branch.OldHistoryID)

	if err := coordinator.TryCancel(ctx, branch); err != nil {
		logger.Error("try_cancel failed: %v", err)
		os.Exit(1)
	}
	fmt.Println("cancel ok")
}

func configureLogging(level string) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
	)
	formatted := logging.NewBackendFormatter(backend, formatter)
	lvl, err := logging.LogLevel(level)
	if err != nil {
		lvl = logging.INFO
	}
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
}
