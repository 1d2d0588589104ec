package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/liquidity-converter-go/cmd/config"
	tokenindexer "github.com/defistate/liquidity-converter-go/protocols/tokenregistry/indexer"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/calculator"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/indexer"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeState is a thread-safe container for the latest pool state and its indexes.
type SafeState struct {
	mu     sync.RWMutex
	state  *client.PoolState
	index  indexer.IndexedUniswapV2
	tokens tokenindexer.IndexedTokenSystem
}

func (s *SafeState) Update(newState *client.PoolState) {
	index := indexer.New().Index(newState.Pools)
	tokens := tokenindexer.New().Index(newState.Tokens)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
	s.index = index
	s.tokens = tokens
}

func (s *SafeState) Get() (*client.PoolState, indexer.IndexedUniswapV2, tokenindexer.IndexedTokenSystem) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.index, s.tokens
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE CLIENTS ---
	stream, err := client.NewClient(ctx, client.Config{
		URL:         cfg.RPCURL,
		Logger:      rootLogger.With("component", "jsonrpc-client"),
		BufferSize:  cfg.BufferSize,
		PoolPatcher: uniswapv2.Patcher,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.RPCURL, "error", err)
		closeApp()
	}

	caller, err := client.Dial(ctx, cfg.RPCURL)
	if err != nil {
		rootLogger.Error("Failed to dial converter", "url", cfg.RPCURL, "error", err)
		closeApp()
	}
	defer caller.Close()

	// --- 4. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}

	fmt.Println(Green + "Starting Liquidity Converter Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go runConsole(ctx, safeState, caller)

	for {
		select {
		case n := <-stream.State():
			safeState.Update(n)

		case err := <-stream.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, safeState *SafeState, caller *client.Caller) {
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

		handleCommand(ctx, input, safeState, caller, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "LIQUIDITY CONVERTER CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Current Block Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Pool Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Pools %s(by Token Pair)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Preview    %s(Conversion)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Whitelisted Routers\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(ctx context.Context, input string, safeState *SafeState, caller *client.Caller, reader *bufio.Reader) {
	state, index, tokens := safeState.Get()

	// Some commands only talk to the RPC endpoint and work before the first snapshot.
	if state == nil && input != "q" && input != "h" && input != "5" && input != "6" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first pool snapshot... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printBlockInfo(state)
	case "2":
		printPoolSummary(state, tokens)
	case "3":
		findPoolsByTokens(index, tokens, reader)
	case "4":
		watchPool(safeState, reader)
	case "5":
		previewConversion(ctx, caller, reader)
	case "6":
		printWhitelist(ctx, caller)
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

	header("LIQUIDITY CONVERTER")
	fmt.Println("The converter withdraws an LP position from a whitelisted source exchange")
	fmt.Println("and redeposits both tokens into the same pair on a fixed destination exchange.")
	fmt.Println("")
	fmt.Println(Bold + "1. THE POOL STREAM" + Reset)
	fmt.Println("   A " + Cyan + "full" + Reset + " snapshot of every pool is sent on subscribe, then a")
	fmt.Println("   " + Cyan + "diff" + Reset + " after each conversion or new block. Diffs carry sequence numbers;")
	fmt.Println("   an out-of-order diff is discarded.")
	fmt.Println("")
	fmt.Println(Bold + "2. PREVIEW" + Reset)
	fmt.Println("   Shows what burning the given LP amount would release right now.")
	fmt.Println("   Amounts are entered in LP units (18 decimals).")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func printBlockInfo(state *client.PoolState) {
	ts := time.Unix(int64(state.Block.Timestamp), 0).UTC().Format(time.RFC3339)

	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Seq %s%d%s | Time %s%s%s | Pools %s%d%s\n",
		Green, Reset,
		Bold, state.Block.Number, Reset,
		Bold, state.Seq, Reset,
		Bold, ts, Reset,
		Bold, len(state.Pools), Reset,
	)
	fmt.Printf("%sTOKENS  ::%s %d deployed\n", Green, Reset, len(state.Tokens))
}

func printPoolSummary(state *client.PoolState, tokens tokenindexer.IndexedTokenSystem) {
	header("POOL SUMMARY")
	printPools(state.Pools, tokens)
}

// printPools renders pools with token symbols and reserves scaled by decimals
// when the token is known.
func printPools(pools []uniswapv2.Pool, tokens tokenindexer.IndexedTokenSystem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "POOL\tLP\tTOKEN0\tTOKEN1\tRESERVE0\tRESERVE1\tTOTAL SUPPLY\t")
	fmt.Fprintln(w, "----\t--\t------\t------\t--------\t--------\t------------\t")
	for _, p := range pools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			short(p.Address), label(tokens, p.Address), label(tokens, p.Token0), label(tokens, p.Token1),
			human(tokens, p.Token0, p.Reserve0), human(tokens, p.Token1, p.Reserve1), human(tokens, p.Address, p.TotalSupply),
		)
	}
	w.Flush()
}

func label(tokens tokenindexer.IndexedTokenSystem, addr common.Address) string {
	if t, ok := tokens.GetByAddress(addr); ok {
		return t.Symbol
	}
	return short(addr)
}

func human(tokens tokenindexer.IndexedTokenSystem, token common.Address, x *big.Int) string {
	t, ok := tokens.GetByAddress(token)
	if !ok || x == nil {
		return fmt.Sprint(x)
	}
	amount, err := calculator.FromBig(x)
	if err != nil {
		return x.String()
	}
	return calculator.FormatUnits(amount, t.Decimals).StringFixed(4)
}

func findPoolsByTokens(index indexer.IndexedUniswapV2, tokens tokenindexer.IndexedTokenSystem, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Find Pools] Enter Token A (address or symbol): " + Reset)
	tokenA, ok := readToken(reader, tokens)
	if !ok {
		return
	}
	fmt.Print(Bold + "[Find Pools] Enter Token B (address or symbol): " + Reset)
	tokenB, ok := readToken(reader, tokens)
	if !ok {
		return
	}

	pools := index.GetByTokens(tokenA, tokenB)
	if len(pools) == 0 {
		fmt.Println(Yellow + "No pool trades this pair." + Reset)
		return
	}
	header(fmt.Sprintf("%d POOL(S)", len(pools)))
	printPools(pools, tokens)
}

func watchPool(safeState *SafeState, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Watch Pool] Enter Pool Address: " + Reset)
	addr, ok := readAddress(reader)
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

	var lastSeq uint64
	first := true
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state, index, tokens := safeState.Get()
			if state == nil || (!first && state.Seq == lastSeq) {
				continue
			}
			first, lastSeq = false, state.Seq

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Seq: %d, Block: %d) ---\n"+Reset, state.Seq, state.Block.Number)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			pool, ok := index.GetByAddress(addr)
			if !ok {
				fmt.Println(Yellow + "Pool not found." + Reset)
				continue
			}
			printPools([]uniswapv2.Pool{pool}, tokens)
		}
	}
}

func previewConversion(ctx context.Context, caller *client.Caller, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Preview] Enter Pool Address: " + Reset)
	pool, ok := readAddress(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "[Preview] Enter Source Router Address: " + Reset)
	router, ok := readAddress(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "[Preview] Enter LP Amount: " + Reset)
	input, _ := reader.ReadString('\n')
	liquidity, err := calculator.ParseUnits(strings.TrimSpace(input), uniswapv2.LPDecimals)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid amount: %v%s\n", err, Reset)
		return
	}

	result, err := caller.PreviewConversion(ctx, pool, router, liquidity)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("PREVIEW")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tDECIMALS\tRELEASED\t")
	for i, leg := range []struct {
		decimals uint8
		amount   *hexutil.Big
	}{
		{result.Token0Decimals, result.Token0Remove},
		{result.Token1Decimals, result.Token1Remove},
	} {
		amount, err := calculator.FromBig(leg.amount.ToInt())
		if err != nil {
			fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
			return
		}
		fmt.Fprintf(w, "token%d\t%d\t%s\t\n", i, leg.decimals, calculator.FormatUnits(amount, leg.decimals).String())
	}
	w.Flush()
}

func printWhitelist(ctx context.Context, caller *client.Caller) {
	routers, err := caller.WhitelistedRouters(ctx)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	header("WHITELISTED ROUTERS")
	for i, r := range routers {
		fmt.Printf(" %s%d.%s %s\n", Cyan, i, Reset, r.Hex())
	}
	if len(routers) == 0 {
		fmt.Println(Yellow + "No trusted routers." + Reset)
	}
}

func readAddress(reader *bufio.Reader) (common.Address, bool) {
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		fmt.Println(Red + "[ERROR] Invalid address." + Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

// readToken accepts an address or a symbol. A symbol shared by several tokens,
// such as an exchange's LP symbol, is rejected.
func readToken(reader *bufio.Reader, tokens tokenindexer.IndexedTokenSystem) (common.Address, bool) {
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if common.IsHexAddress(input) {
		return common.HexToAddress(input), true
	}
	matches := tokens.GetBySymbol(input)
	switch len(matches) {
	case 1:
		return matches[0].Address, true
	case 0:
		fmt.Println(Red + "[ERROR] Unknown token." + Reset)
	default:
		fmt.Printf(Red+"[ERROR] %d tokens use the symbol %s, enter an address.%s\n", len(matches), input, Reset)
	}
	return common.Address{}, false
}

func short(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

func loadConfig() (*config.ConsoleConfig, error) {
	configPath := flag.String("config", "console.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConsoleConfig(*configPath)
}
