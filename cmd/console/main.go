package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/defistate/defistate-amm-go/cmd/console/config"
	constantproduct "github.com/defistate/defistate-amm-go/protocols/constantproduct"
	stableswap "github.com/defistate/defistate-amm-go/protocols/stableswap"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/defistate/defistate-amm-go/sandbox"
	"github.com/ethereum/go-ethereum/common"

	"github.com/prometheus/client_golang/prometheus"
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

func fail(err error) {
	fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
}

// console ties the sandbox host to the router it drives.
type console struct {
	cfg    *config.ConsoleConfig
	host   *sandbox.Host
	router *router.Router
	admin  common.Address
	reader *bufio.Reader
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + cfg.LogFile + " for details." + Reset)
		os.Exit(1)
	}

	// --- 2. SANDBOX & ROUTER ---
	var routerAddr, admin, rewardToken common.Address
	for _, role := range []struct {
		name string
		ref  string
		dst  *common.Address
	}{
		{"router", cfg.Router, &routerAddr},
		{"admin", cfg.Admin, &admin},
		{"rewardToken", cfg.RewardToken, &rewardToken},
	} {
		if *role.dst, err = cfg.Resolve(role.ref); err != nil {
			rootLogger.Error("Failed to resolve address", "field", role.name, "error", err)
			closeApp()
		}
	}

	host := sandbox.NewHost(cfg.StartTime)
	r, err := router.New(&router.Config{
		Address:        routerAddr,
		Admin:          admin,
		RewardToken:    rewardToken,
		Env:            host.Env(),
		Deployer:       host.CodeSpace,
		MaxStablePools: cfg.MaxStablePools,
		Registry:       prometheus.DefaultRegisterer,
		Logger:         rootLogger.With("component", "router"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize router", "error", err)
		closeApp()
	}

	c := &console{
		cfg:    cfg,
		host:   host,
		router: r,
		admin:  admin,
		reader: bufio.NewReader(os.Stdin),
	}
	if err := c.bootstrap(); err != nil {
		rootLogger.Error("Failed to bootstrap sandbox", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(Green + "Starting AMM Sandbox Console..." + Reset)
	fmt.Printf("Logs are being written to '%s'\n", cfg.LogFile)
	c.run(ctx)
	fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
}

// bootstrap applies the configured mints and deploys the configured pools.
func (c *console) bootstrap() error {
	for i, m := range c.cfg.Mints {
		account, err := c.cfg.Resolve(m.Account)
		if err != nil {
			return fmt.Errorf("mints[%d].account: %w", i, err)
		}
		token, err := c.cfg.Resolve(m.Token)
		if err != nil {
			return fmt.Errorf("mints[%d].token: %w", i, err)
		}
		if err := c.host.Ledger.Mint(token, account, m.Amount); err != nil {
			return fmt.Errorf("mint %s to %s: %w", m.Token, m.Account, err)
		}
	}
	for i, p := range c.cfg.Pools {
		tokens, err := c.cfg.ResolveAll(p.Tokens)
		if err != nil {
			return fmt.Errorf("pools[%d].tokens: %w", i, err)
		}
		if _, _, err := c.router.Deploy(c.admin, tokens, poolParams(p.Type, p.FeeBps, p.Amplification)); err != nil {
			return fmt.Errorf("deploy pools[%d]: %w", i, err)
		}
	}
	return nil
}

func poolParams(kind string, feeBps uint32, amplification uint64) router.PoolParams {
	if kind == stableswap.Kind {
		return router.PoolParams{StableSwap: &stableswap.Params{Amplification: amplification, FeeBps: feeBps}}
	}
	return router.PoolParams{ConstantProduct: &constantproduct.Params{FeeBps: feeBps}}
}

// run handles user input and display until ctx ends or the user quits.
func (c *console) run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	for {
		c.printMenu()
		fmt.Print(Bold + "Enter selection: " + Reset)

		select {
		case <-ctx.Done():
			return
		case input, ok := <-lines:
			if !ok || input == "q" {
				return
			}
			c.handleCommand(input, lines)
		}
	}
}

func (c *console) printMenu() {
	fmt.Println()
	fmt.Println(Bold + "AMM SANDBOX CONSOLE" + Reset + Gray + fmt.Sprintf(" | t=%d", c.host.Clock.Now()) + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Balances     %s(account)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s2.%s Mint\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Deploy Pool\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Find Pools   %s(by Token)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Pool Info\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Deposit\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Withdraw\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Swap         %s(best pool)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s9.%s Swap Exact Out\n", Cyan, Reset)
	fmt.Printf(" %s10.%s Set Reward Schedule\n", Cyan, Reset)
	fmt.Printf(" %s11.%s Claim Rewards\n", Cyan, Reset)
	fmt.Printf(" %s12.%s Advance Clock\n", Cyan, Reset)
	fmt.Printf(" %s13.%s Swap Route   %s(multi-hop)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s14.%s Transfer Shares\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
}

func (c *console) handleCommand(input string, lines <-chan string) {
	p := &prompter{cfg: c.cfg, lines: lines}

	var err error
	switch input {
	case "1":
		err = c.printBalances(p)
	case "2":
		err = c.mint(p)
	case "3":
		err = c.deploy(p)
	case "4":
		err = c.findPools(p)
	case "5":
		err = c.poolInfo(p)
	case "6":
		err = c.deposit(p)
	case "7":
		err = c.withdraw(p)
	case "8":
		err = c.swap(p)
	case "9":
		err = c.swapExactOut(p)
	case "10":
		err = c.setSchedule(p)
	case "11":
		err = c.claim(p)
	case "12":
		err = c.advance(p)
	case "13":
		err = c.swapRoute(p)
	case "14":
		err = c.transferShares(p)
	case "":
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
	if err != nil {
		fail(err)
	}
}

// --- PROMPTS ---

type prompter struct {
	cfg   *config.ConsoleConfig
	lines <-chan string
}

func (p *prompter) line(prompt string) (string, error) {
	fmt.Print(Bold + prompt + Reset)
	s, ok := <-p.lines
	if !ok {
		return "", fmt.Errorf("input closed")
	}
	return s, nil
}

func (p *prompter) address(prompt string) (common.Address, error) {
	s, err := p.line(prompt)
	if err != nil {
		return common.Address{}, err
	}
	return p.cfg.Resolve(s)
}

func (p *prompter) addresses(prompt string) ([]common.Address, error) {
	s, err := p.line(prompt)
	if err != nil {
		return nil, err
	}
	return p.cfg.ResolveAll(strings.Fields(strings.ReplaceAll(s, ",", " ")))
}

func (p *prompter) amount(prompt string) (*big.Int, error) {
	s, err := p.line(prompt)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return v, nil
}

// optionalAmount returns nil for an empty answer.
func (p *prompter) optionalAmount(prompt string) (*big.Int, error) {
	s, err := p.line(prompt)
	if err != nil || s == "" {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return v, nil
}

func (p *prompter) number(prompt string) (uint64, error) {
	s, err := p.line(prompt)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

func (c *console) selectPool(p *prompter) (router.RegistryEntry, error) {
	addr, err := p.address("Pool address: ")
	if err != nil {
		return router.RegistryEntry{}, err
	}
	return c.router.Entry(addr)
}

// --- COMMAND HANDLERS ---

func (c *console) printBalances(p *prompter) error {
	account, err := p.address("Account: ")
	if err != nil {
		return err
	}

	assets := make(map[common.Address]struct{})
	for _, hex := range c.cfg.Accounts {
		if common.IsHexAddress(hex) {
			assets[common.HexToAddress(hex)] = struct{}{}
		}
	}
	for _, addr := range c.router.Graph().Pools {
		pl, err := c.router.PoolAt(addr)
		if err != nil {
			return err
		}
		assets[pl.ShareToken()] = struct{}{}
	}

	names := make([]string, 0, len(assets))
	byName := make(map[string]common.Address, len(assets))
	for asset := range assets {
		name := c.cfg.Alias(asset)
		names = append(names, name)
		byName[name] = asset
	}
	slices.Sort(names)

	header("BALANCES OF " + c.cfg.Alias(account))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ASSET\tBALANCE\t")
	fmt.Fprintln(w, "-----\t-------\t")
	for _, name := range names {
		bal := c.host.Ledger.BalanceOf(byName[name], account)
		if bal.Sign() == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t\n", name, bal)
	}
	return w.Flush()
}

func (c *console) mint(p *prompter) error {
	account, err := p.address("Account: ")
	if err != nil {
		return err
	}
	token, err := p.address("Token: ")
	if err != nil {
		return err
	}
	amount, err := p.amount("Amount: ")
	if err != nil {
		return err
	}
	if err := c.host.Ledger.Mint(token, account, amount); err != nil {
		return err
	}
	fmt.Printf("%sMinted %s %s to %s%s\n", Green, amount, c.cfg.Alias(token), c.cfg.Alias(account), Reset)
	return nil
}

func (c *console) deploy(p *prompter) error {
	tokens, err := p.addresses("Tokens (space separated): ")
	if err != nil {
		return err
	}
	kind, err := p.line("Type [constant_product|stableswap]: ")
	if err != nil {
		return err
	}
	if kind != constantproduct.Kind && kind != stableswap.Kind {
		return fmt.Errorf("unknown pool type %q", kind)
	}
	fee, err := p.number("Fee (bps): ")
	if err != nil {
		return err
	}
	var amp uint64
	if kind == stableswap.Kind {
		if amp, err = p.number("Amplification: "); err != nil {
			return err
		}
	}

	subSalt, addr, err := c.router.Deploy(c.admin, tokens, poolParams(kind, uint32(fee), amp))
	if err != nil {
		return err
	}
	fmt.Printf("%sDeployed %s pool at %s (sub-salt %s)%s\n", Green, kind, addr.Hex(), subSalt.Hex(), Reset)
	return nil
}

func (c *console) findPools(p *prompter) error {
	token, err := p.address("Token: ")
	if err != nil {
		return err
	}
	entries := c.router.PoolsForToken(token)
	if len(entries) == 0 {
		fmt.Println(Yellow + "[INFO] Token has no pools." + Reset)
		return nil
	}

	header("POOLS FOR " + c.cfg.Alias(token))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TYPE\tTOKENS\tPOOL ADDRESS\t")
	fmt.Fprintln(w, "----\t------\t------------\t")
	for _, e := range entries {
		names := make([]string, len(e.Tokens))
		for i, t := range e.Tokens {
			names[i] = c.cfg.Alias(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", e.Type, strings.Join(names, "/"), e.Address.Hex())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	neighbors := c.router.Neighbors(token)
	names := make([]string, len(neighbors))
	for i, t := range neighbors {
		names[i] = c.cfg.Alias(t)
	}
	fmt.Printf("%sTrades against:%s %s\n", Gray, Reset, strings.Join(names, ", "))
	return nil
}

func (c *console) poolInfo(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	pl, err := c.router.PoolAt(entry.Address)
	if err != nil {
		return err
	}
	info, err := c.router.RewardInfo(c.admin, entry.Tokens, entry.SubSalt)
	if err != nil {
		return err
	}

	header("POOL " + entry.Address.Hex())
	out, err := json.MarshalIndent(struct {
		Pool    any                  `json:"pool"`
		Entry   router.RegistryEntry `json:"entry"`
		Rewards any                  `json:"rewards"`
	}{pl.View(), entry, info}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *console) deposit(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	caller, err := p.address("Depositor: ")
	if err != nil {
		return err
	}
	desired := make([]*big.Int, len(entry.Tokens))
	for i, t := range entry.Tokens {
		if desired[i], err = p.amount(fmt.Sprintf("Amount of %s: ", c.cfg.Alias(t))); err != nil {
			return err
		}
	}

	amounts, shares, err := c.router.Deposit(caller, entry.Tokens, entry.SubSalt, desired, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%sDeposited %v, minted %s shares%s\n", Green, amounts, shares, Reset)
	return nil
}

func (c *console) withdraw(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	caller, err := p.address("Holder: ")
	if err != nil {
		return err
	}
	shares, err := p.amount("Shares: ")
	if err != nil {
		return err
	}

	amounts, err := c.router.Withdraw(caller, entry.Tokens, entry.SubSalt, shares, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%sWithdrew %v%s\n", Green, amounts, Reset)
	return nil
}

func (c *console) swap(p *prompter) error {
	caller, err := p.address("Trader: ")
	if err != nil {
		return err
	}
	tokenIn, err := p.address("Token in: ")
	if err != nil {
		return err
	}
	tokenOut, err := p.address("Token out: ")
	if err != nil {
		return err
	}
	amountIn, err := p.amount("Amount in: ")
	if err != nil {
		return err
	}

	best, quote, err := c.router.BestPool(tokenIn, tokenOut, amountIn)
	if err != nil {
		return err
	}
	fmt.Printf("Best pool %s (%s) quotes %s\n", best.Address.Hex(), best.Type, quote)
	minOut, err := p.optionalAmount("Minimum out [enter to accept quote]: ")
	if err != nil {
		return err
	}
	if minOut == nil {
		minOut = quote
	}

	entry, out, err := c.router.SwapBest(caller, tokenIn, tokenOut, amountIn, minOut)
	if err != nil {
		return err
	}
	fmt.Printf("%sSwapped via %s, received %s %s%s\n", Green, entry.Address.Hex(), out, c.cfg.Alias(tokenOut), Reset)
	return nil
}

func (c *console) swapRoute(p *prompter) error {
	caller, err := p.address("Trader: ")
	if err != nil {
		return err
	}
	tokenIn, err := p.address("Token in: ")
	if err != nil {
		return err
	}
	tokenOut, err := p.address("Token out: ")
	if err != nil {
		return err
	}
	amountIn, err := p.amount("Amount in: ")
	if err != nil {
		return err
	}
	maxHops, err := p.number(fmt.Sprintf("Max hops [0 for %d]: ", router.DefaultMaxHops))
	if err != nil {
		return err
	}

	hops, quote, err := c.router.FindRoute(tokenIn, tokenOut, amountIn, int(maxHops))
	if err != nil {
		return err
	}
	for i, hop := range hops {
		fmt.Printf(" %d. %s -> %s via %s\n", i+1, c.cfg.Alias(hop.TokenIn), c.cfg.Alias(hop.TokenOut), hop.Pool.Hex())
	}
	fmt.Printf("Route quotes %s\n", quote)
	minOut, err := p.optionalAmount("Minimum out [enter to accept quote]: ")
	if err != nil {
		return err
	}
	if minOut == nil {
		minOut = quote
	}

	out, err := c.router.SwapRoute(caller, hops, amountIn, minOut)
	if err != nil {
		return err
	}
	fmt.Printf("%sReceived %s %s over %d hops%s\n", Green, out, c.cfg.Alias(tokenOut), len(hops), Reset)
	return nil
}

func (c *console) swapExactOut(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	caller, err := p.address("Trader: ")
	if err != nil {
		return err
	}
	tokenIn, err := p.address("Token in: ")
	if err != nil {
		return err
	}
	tokenOut, err := p.address("Token out: ")
	if err != nil {
		return err
	}
	amountOut, err := p.amount("Amount out: ")
	if err != nil {
		return err
	}

	quote, err := c.router.EstimateSwapIn(entry.Tokens, entry.SubSalt, tokenIn, tokenOut, amountOut)
	if err != nil {
		return err
	}
	fmt.Printf("Costs %s %s\n", quote, c.cfg.Alias(tokenIn))
	maxIn, err := p.optionalAmount("Maximum in [enter to accept quote]: ")
	if err != nil {
		return err
	}
	if maxIn == nil {
		maxIn = quote
	}

	in, err := c.router.SwapExactOut(caller, entry.Tokens, entry.SubSalt, tokenIn, tokenOut, amountOut, maxIn)
	if err != nil {
		return err
	}
	fmt.Printf("%sPaid %s %s%s\n", Green, in, c.cfg.Alias(tokenIn), Reset)
	return nil
}

func (c *console) setSchedule(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	duration, err := p.number("Duration (seconds): ")
	if err != nil {
		return err
	}
	amount, err := p.amount("Total reward: ")
	if err != nil {
		return err
	}

	expiresAt := c.host.Clock.Now() + duration
	if err := c.router.SetRewardsConfig(c.admin, entry.Tokens, entry.SubSalt, expiresAt, amount); err != nil {
		return err
	}
	fmt.Printf("%sSchedule set until t=%d%s\n", Green, expiresAt, Reset)
	return nil
}

func (c *console) claim(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	caller, err := p.address("Holder: ")
	if err != nil {
		return err
	}
	paid, err := c.router.Claim(caller, entry.Tokens, entry.SubSalt)
	if err != nil {
		return err
	}
	fmt.Printf("%sClaimed %s%s\n", Green, paid, Reset)
	return nil
}

func (c *console) transferShares(p *prompter) error {
	entry, err := c.selectPool(p)
	if err != nil {
		return err
	}
	from, err := p.address("From: ")
	if err != nil {
		return err
	}
	to, err := p.address("To: ")
	if err != nil {
		return err
	}
	amount, err := p.amount("Shares: ")
	if err != nil {
		return err
	}
	if err := c.router.TransferShares(from, entry.Tokens, entry.SubSalt, to, amount); err != nil {
		return err
	}
	fmt.Printf("%sMoved %s shares to %s%s\n", Green, amount, c.cfg.Alias(to), Reset)
	return nil
}

func (c *console) advance(p *prompter) error {
	seconds, err := p.number("Seconds: ")
	if err != nil {
		return err
	}
	c.host.Clock.Advance(seconds)
	fmt.Printf("%sClock at t=%d%s\n", Green, c.host.Clock.Now(), Reset)
	return nil
}

func loadConfig() (*config.ConsoleConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
