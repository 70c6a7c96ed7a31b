package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-arb-go/cmd/arb/config"
	"github.com/defistate/defistate-arb-go/engine"
	"github.com/defistate/defistate-arb-go/inspect"
	"github.com/defistate/defistate-arb-go/scheduler"
	"github.com/sugawarayuuta/sonnet"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultPollInterval = time.Second
	DefaultListLimit    = 20
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// Snapshot is one poll of the engine's inspect surface.
type Snapshot struct {
	Cycles   []inspect.CycleView
	Best     *scheduler.Record
	PolledAt time.Time
}

// SafeSnapshot is a thread-safe container for the latest snapshot.
type SafeSnapshot struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func (s *SafeSnapshot) Update(n *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = n
}

func (s *SafeSnapshot) Get() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// inspectClient reads the JSON endpoints of a running engine.
type inspectClient struct {
	baseURL string
	http    *http.Client
}

var errNotFound = errors.New("not found")

func (c *inspectClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, errNotFound)
	default:
		return fmt.Errorf("%s: %s: %s", path, res.Status, strings.TrimSpace(string(body)))
	}
	return sonnet.Unmarshal(body, out)
}

func (c *inspectClient) poll(ctx context.Context) (*Snapshot, error) {
	var cycles []inspect.CycleView
	if err := c.get(ctx, "/cycles", &cycles); err != nil {
		return nil, err
	}
	snap := &Snapshot{Cycles: cycles, PolledAt: time.Now()}

	var best scheduler.Record
	switch err := c.get(ctx, "/best", &best); {
	case err == nil:
		snap.Best = &best
	case !errors.Is(err, errNotFound):
		return nil, err
	}
	return snap, nil
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogHandler := slog.NewJSONHandler(logFile, nil)
	rootLogger := slog.New(rootLogHandler)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	baseURL, err := loadInspectURL()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &inspectClient{baseURL: baseURL, http: &http.Client{Timeout: 5 * time.Second}}

	// --- 3. START CONSOLE & POLL LOOP ---
	safeSnapshot := &SafeSnapshot{}

	fmt.Println(Green + "Starting arbitrage console against " + baseURL + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go runConsole(ctx, client, safeSnapshot)

	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ticker.C:
			snap, err := client.poll(ctx)
			if err != nil {
				failures++
				rootLogger.Warn("Poll failed", "error", err, "consecutive", failures)
				continue
			}
			if failures > 0 {
				rootLogger.Info("Poll recovered", "after", failures)
				failures = 0
			}
			safeSnapshot.Update(snap)

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, client *inspectClient, safeSnapshot *SafeSnapshot) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		input = strings.TrimSpace(input)

		handleCommand(ctx, input, client, safeSnapshot, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "ARBITRAGE CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Engine Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Top Cycles %s(by Profit)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Find Cycle %s(by ID)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Find Cycles %s(by Currency)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch Cycle %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Recent Executions\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(ctx context.Context, input string, client *inspectClient, safeSnapshot *SafeSnapshot, reader *bufio.Reader) {
	snap := safeSnapshot.Get()

	// Allow help and quit even if nothing was polled yet
	if snap == nil && input != "q" && input != "h" && input != "6" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for the first poll... (Check the engine and console.log)" + Reset)
		return
	}

	switch input {
	case "1":
		printStatus(snap)
	case "2":
		printTopCycles(snap)
	case "3":
		findCycle(snap, reader)
	case "4":
		findCyclesByCurrency(snap, reader)
	case "5":
		watchCycle(safeSnapshot, reader)
	case "6":
		printExecutions(ctx, client)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("ENGINE OVERVIEW")
	fmt.Println(Bold + "Concept: Cycles over a fixed pool set" + Reset)
	fmt.Println("The engine enumerates every closed loop of pools that starts and ends")
	fmt.Println("in the base currency, then re-prices loops as reserves change.")
	fmt.Println("")
	fmt.Println(Bold + "FIELDS" + Reset)
	fmt.Println("   - " + Yellow + "Size" + Reset + ": the optimal input, in base currency units.")
	fmt.Println("   - " + Yellow + "Gain" + Reset + ": the predicted output of the loop for that input.")
	fmt.Println("   - " + Yellow + "Profit" + Reset + ": gain minus size; negative means the loop loses.")
	fmt.Println("   - " + Yellow + "Cooldown" + Reset + ": quiet passes left before the cached result is dropped.")
	fmt.Println("")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
	fmt.Println("This console only reads the inspect endpoints; it never trades.")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func printStatus(snap *Snapshot) {
	profitable := 0
	cooling := 0
	for _, c := range snap.Cycles {
		if c.Profit > 0 {
			profitable++
		}
		if c.Cooldown > 0 {
			cooling++
		}
	}

	fmt.Printf("\n%sSTATUS  ::%s Cycles %s%d%s | Profitable %s%d%s | Cooling %s%d%s | Polled %s%s%s\n",
		Green, Reset,
		Bold, len(snap.Cycles), Reset,
		Bold, profitable, Reset,
		Bold, cooling, Reset,
		Bold, snap.PolledAt.Format("15:04:05"), Reset,
	)

	if snap.Best == nil {
		fmt.Println(Gray + "No profitable evaluation yet." + Reset)
		return
	}
	header("BEST SO FAR")
	fmt.Printf(" %s%-10s%s %d\n", Gray, "Cycle:", Reset, snap.Best.Cycle)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Route:", Reset, snap.Best.Route)
	fmt.Printf(" %s%-10s%s %d\n", Gray, "Size:", Reset, snap.Best.Size)
	fmt.Printf(" %s%-10s%s %d\n", Gray, "Profit:", Reset, snap.Best.Profit)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "At:", Reset, snap.Best.At.Format(time.RFC3339))
}

func printTopCycles(snap *Snapshot) {
	header("TOP CYCLES")
	top := make([]inspect.CycleView, len(snap.Cycles))
	copy(top, snap.Cycles)
	sortByProfit(top)
	if len(top) > DefaultListLimit {
		top = top[:DefaultListLimit]
	}
	printCycleTable(top)
}

func sortByProfit(cycles []inspect.CycleView) {
	sort.SliceStable(cycles, func(i, j int) bool { return cycles[i].Profit > cycles[j].Profit })
}

func printCycleTable(cycles []inspect.CycleView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tROUTE\tSIZE\tPROFIT\tYIELD\tCOOLDOWN\t")
	fmt.Fprintln(w, "--\t-----\t----\t------\t-----\t--------\t")
	for _, c := range cycles {
		profit := c.ProfitUI
		if c.Profit > 0 {
			profit = Green + profit + Reset
		} else if c.Profit < 0 {
			profit = Red + profit + Reset
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t\n", c.ID, c.Route, c.SizeUI, profit, c.Yield, c.Cooldown)
	}
	w.Flush()
}

func findCycle(snap *Snapshot, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Cycle] Enter Cycle ID: " + Reset)
	id, ok := readCycleID(snap, reader)
	if !ok {
		return
	}
	printCycle(snap.Cycles[id])
}

func printCycle(c inspect.CycleView) {
	header("CYCLE DETAILS")
	fmt.Printf(" %s%-16s%s %d\n", Gray, "ID:", Reset, c.ID)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Route:", Reset, c.Route)
	fmt.Printf(" %s%-16s%s %s (%d)\n", Gray, "Size:", Reset, c.SizeUI, c.Size)
	fmt.Printf(" %s%-16s%s %s (%d)\n", Gray, "Gain:", Reset, c.GainUI, c.Gain)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Profit:", Reset, c.ProfitUI)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Yield:", Reset, c.Yield)
	fmt.Printf(" %s%-16s%s %d\n", Gray, "Cooldown:", Reset, c.Cooldown)
	fmt.Printf(" %s%-16s%s %t\n", Gray, "Needs approval:", Reset, c.NeedsApproval)

	header("HOPS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tPOOL\tDIRECTION\t")
	for i, leg := range c.Path {
		fmt.Fprintf(w, "%d\t%d\t%d\t\n", i, leg.Pool, leg.Direction)
	}
	w.Flush()
}

func findCyclesByCurrency(snap *Snapshot, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Cycles] Enter Currency Name: " + Reset)
	input, _ := reader.ReadString('\n')
	name := strings.TrimSpace(input)
	if name == "" {
		return
	}

	var matches []inspect.CycleView
	for _, c := range snap.Cycles {
		for _, part := range strings.Fields(c.Route) {
			if strings.EqualFold(part, name) {
				matches = append(matches, c)
				break
			}
		}
	}
	if len(matches) == 0 {
		fmt.Println(Red + "[NOT FOUND] No cycle passes through " + name + "." + Reset)
		return
	}
	header(fmt.Sprintf("CYCLES THROUGH %s (%d)", strings.ToUpper(name), len(matches)))
	printCycleTable(matches)
}

func watchCycle(safeSnapshot *SafeSnapshot, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Watch Cycle] Enter Cycle ID: " + Reset)
	id, ok := readCycleID(safeSnapshot.Get(), reader)
	if !ok {
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastPoll time.Time
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			snap := safeSnapshot.Get()
			if snap == nil || !snap.PolledAt.After(lastPoll) || id >= len(snap.Cycles) {
				continue
			}
			lastPoll = snap.PolledAt

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (%s) ---\n"+Reset, snap.PolledAt.Format("15:04:05"))
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)
			printCycle(snap.Cycles[id])
		}
	}
}

func printExecutions(ctx context.Context, client *inspectClient) {
	header("RECENT EXECUTIONS")
	var results []engine.ExecutionResult
	if err := client.get(ctx, "/executions?limit="+strconv.Itoa(DefaultListLimit), &results); err != nil {
		if errors.Is(err, errNotFound) {
			fmt.Println(Gray + "[INFO] The engine runs without an execution journal." + Reset)
			return
		}
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	if len(results) == 0 {
		fmt.Println(Gray + "Nothing executed yet." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tCYCLE\tSIZE\tSTATUS\tSIGNATURE / ERROR\t")
	fmt.Fprintln(w, "----\t-----\t----\t------\t-----------------\t")
	for _, r := range results {
		status := Green + string(r.Status) + Reset
		detail := r.Signature
		if r.Status != engine.StatusSubmitted {
			status = Red + string(r.Status) + Reset
			detail = r.Error
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t\n", r.At.Format("15:04:05"), r.Cycle, r.Size, status, detail)
	}
	w.Flush()
}

func readCycleID(snap *Snapshot, reader *bufio.Reader) (int, bool) {
	input, _ := reader.ReadString('\n')
	id, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid cycle id: %v%s\n", err, Reset)
		return 0, false
	}
	if snap == nil || id < 0 || id >= len(snap.Cycles) {
		fmt.Println(Red + "[NOT FOUND] No cycle with that id." + Reset)
		return 0, false
	}
	return id, true
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

// loadInspectURL resolves the engine address from -inspect, or from the
// inspect.addr of the engine's configuration file.
func loadInspectURL() (string, error) {
	configPath := flag.String("config", "config.yaml", "Path to the engine configuration file.")
	inspectURL := flag.String("inspect", "", "Base URL of the engine's inspect server; overrides the configuration.")
	flag.Parse()
	if *inspectURL != "" {
		return strings.TrimSuffix(*inspectURL, "/"), nil
	}

	log.Printf("Loading configuration from: %s", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return "", err
	}
	addr := cfg.Inspect.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr, nil
}
