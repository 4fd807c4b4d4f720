package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/polaris-fi/perpdesk/internal/config"
	"github.com/polaris-fi/perpdesk/internal/logging"
	"github.com/polaris-fi/perpdesk/internal/perp"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadTraderConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("trader", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: perpctl <command> [flags]

commands:
  stats                       print pool aggregates
  positions                   list the wallet's open positions
  add-liquidity               deposit a token for pool shares
  remove-liquidity            redeem pool shares for a token
  swap                        swap between two pool tokens
  open-long                   open a long position
  open-short                  open a short position
  close                       close a position
  stake                       stake a protocol token
  unstake                     withdraw an unlocked stake
  claim                       claim staking rewards
  profile                     create or rename the wallet's profile`)
}

func run(ctx context.Context, cfg config.TraderConfig, logger *slog.Logger, command string, args []string) error {
	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	switch command {
	case "stats":
		return runStats(client)
	case "positions":
		return runPositions(ctx, cfg, client, logger)
	default:
	}

	trader, err := newTrader(cfg, client, logger)
	if err != nil {
		return err
	}

	switch command {
	case "add-liquidity":
		return runAddLiquidity(ctx, client, trader, args)
	case "remove-liquidity":
		return runRemoveLiquidity(ctx, client, trader, args)
	case "swap":
		return runSwap(ctx, client, trader, args)
	case "open-long":
		return runOpenPosition(ctx, client, trader, perp.SideLong, args)
	case "open-short":
		return runOpenPosition(ctx, client, trader, perp.SideShort, args)
	case "close":
		return runClose(ctx, cfg, client, trader, args)
	case "stake":
		return runStake(ctx, client, trader, args)
	case "unstake":
		return runUnstake(ctx, client, trader, args)
	case "claim":
		return runClaim(ctx, client, trader, args)
	case "profile":
		return runProfile(ctx, trader, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func newClient(ctx context.Context, cfg config.TraderConfig, logger *slog.Logger) (*perp.Client, error) {
	tokens := make([]perp.Token, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens = append(tokens, perp.Token{
			Mint:     t.Mint,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			IsStable: t.Stable,
		})
	}

	return perp.NewClient(ctx, perp.Params{
		ProgramID:                     cfg.ProgramID,
		Pool:                          cfg.Pool,
		GovernanceProgramID:           cfg.GovernanceProgramID,
		GovernanceRealmName:           cfg.GovernanceRealmName,
		AutomationProgramID:           cfg.AutomationProgramID,
		StakesClaimPayer:              cfg.StakesClaimPayer,
		ViewPayer:                     cfg.ViewPayer,
		Commitment:                    cfg.Commitment,
		SlippageBps:                   cfg.SlippageBps,
		ComputeUnitPriceMicroLamports: cfg.ComputeUnitPriceMicroLamports,
		ConfirmationPollInterval:      cfg.ConfirmationPollInterval,
		ConfirmationTimeout:           cfg.ConfirmationTimeout,
		Tokens:                        tokens,
	}, rpc.New(cfg.RPCURL), logger)
}

func newTrader(cfg config.TraderConfig, client *perp.Client, logger *slog.Logger) (*perp.Trader, error) {
	signer, err := perp.NewKeypairSigner(cfg.KeypairPath)
	if err != nil {
		return nil, err
	}
	return perp.NewTrader(client, signer, logger), nil
}

func resolveMint(client *perp.Client, symbolOrMint string) (perp.Token, error) {
	for _, token := range client.Tokens().All() {
		if token.Symbol == symbolOrMint {
			return token, nil
		}
	}
	mint, err := solana.PublicKeyFromBase58(symbolOrMint)
	if err != nil {
		return perp.Token{}, fmt.Errorf("unknown token %q", symbolOrMint)
	}
	return client.Tokens().ByMint(mint)
}

func runStats(client *perp.Client) error {
	stats := client.Stats()
	fmt.Printf("aum_usd            %.2f\n", stats.AumUsd)
	fmt.Printf("total_fees_usd     %.2f\n", stats.TotalFeesUsd)
	fmt.Printf("total_volume_usd   %.2f\n", stats.TotalVolumeUsd)
	fmt.Printf("oi_long_usd        %.2f\n", stats.OiLongUsd)
	fmt.Printf("oi_short_usd       %.2f\n", stats.OiShortUsd)
	fmt.Printf("open_longs         %d (avg leverage %.2fx)\n", stats.NbOpenLongPositions, stats.AverageLongLeverage)
	fmt.Printf("open_shorts        %d (avg leverage %.2fx)\n", stats.NbOpenShortPositions, stats.AverageShortLeverage)
	return nil
}

func runPositions(ctx context.Context, cfg config.TraderConfig, client *perp.Client, logger *slog.Logger) error {
	signer, err := perp.NewKeypairSigner(cfg.KeypairPath)
	if err != nil {
		return err
	}

	views, err := client.LoadUserPositions(ctx, signer.PublicKey())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("no open positions")
		return nil
	}

	for _, view := range views {
		pnl := int64(0)
		if view.PnL != nil {
			pnl = view.PnL.Signed()
		}
		fmt.Printf("%s %s size=%s collateral=%s pnl=%d liq=%d leverage=%.2fx\n",
			view.Address,
			perp.Side(view.State.Side),
			perp.ToUI(view.State.SizeUsd, perp.USDDecimals),
			perp.ToUI(view.State.CollateralUsd, perp.USDDecimals),
			pnl,
			view.LiquidationPrice,
			view.Leverage,
		)
	}
	return nil
}

func runAddLiquidity(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("add-liquidity", flag.ContinueOnError)
	tokenFlag := fs.String("token", "", "token symbol or mint")
	amountFlag := fs.Float64("amount", 0, "amount to deposit (ui units)")
	minLPFlag := fs.Float64("min-lp", 0, "minimum pool shares to accept (ui units)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := resolveMint(client, *tokenFlag)
	if err != nil {
		return err
	}
	amount := perp.ToNativeFloat(*amountFlag, token.Decimals)
	minLP := perp.ToNativeFloat(*minLPFlag, perp.LPTokenDecimals)

	sig, err := trader.AddLiquidity(ctx, token.Mint, amount, minLP)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runRemoveLiquidity(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("remove-liquidity", flag.ContinueOnError)
	tokenFlag := fs.String("token", "", "token symbol or mint to receive")
	lpAmountFlag := fs.Float64("lp-amount", 0, "pool shares to redeem (ui units)")
	minOutFlag := fs.Float64("min-amount", 0, "minimum tokens to accept (ui units)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := resolveMint(client, *tokenFlag)
	if err != nil {
		return err
	}
	lpAmount := perp.ToNativeFloat(*lpAmountFlag, perp.LPTokenDecimals)
	minOut := perp.ToNativeFloat(*minOutFlag, token.Decimals)

	sig, err := trader.RemoveLiquidity(ctx, token.Mint, lpAmount, minOut)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runSwap(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("swap", flag.ContinueOnError)
	inFlag := fs.String("in", "", "input token symbol or mint")
	outFlag := fs.String("out", "", "output token symbol or mint")
	amountFlag := fs.Float64("amount", 0, "input amount (ui units)")
	minOutFlag := fs.Float64("min-out", 0, "minimum output to accept (ui units)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tokenIn, err := resolveMint(client, *inFlag)
	if err != nil {
		return err
	}
	tokenOut, err := resolveMint(client, *outFlag)
	if err != nil {
		return err
	}
	amountIn := perp.ToNativeFloat(*amountFlag, tokenIn.Decimals)
	minOut := perp.ToNativeFloat(*minOutFlag, tokenOut.Decimals)

	sig, err := trader.Swap(ctx, tokenIn.Mint, tokenOut.Mint, amountIn, minOut)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runOpenPosition(ctx context.Context, client *perp.Client, trader *perp.Trader, side perp.Side, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	tokenFlag := fs.String("token", "", "token to trade, symbol or mint")
	collateralFlag := fs.String("collateral-token", "", "token funding the collateral (defaults to the traded token)")
	collateralAmountFlag := fs.Float64("collateral", 0, "collateral amount (ui units)")
	leverageFlag := fs.Float64("leverage", 0, "target leverage, e.g. 4 for 4x")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := resolveMint(client, *tokenFlag)
	if err != nil {
		return err
	}
	collateralToken := token
	if *collateralFlag != "" {
		collateralToken, err = resolveMint(client, *collateralFlag)
		if err != nil {
			return err
		}
	}
	collateral := perp.ToNativeFloat(*collateralAmountFlag, collateralToken.Decimals)
	if *leverageFlag <= 0 {
		return fmt.Errorf("leverage must be positive")
	}
	leverage := uint32(*leverageFlag * perp.BPSDivisor)

	quote, err := trader.GetEntryPriceAndFee(ctx, token.Mint, collateralToken.Mint, collateral, leverage, side)
	if err != nil {
		return err
	}

	params := perp.OpenPositionParams{
		Mint:             token.Mint,
		CollateralMint:   collateralToken.Mint,
		Price:            quote.EntryPrice,
		CollateralAmount: collateral,
		Leverage:         leverage,
	}

	var sig solana.Signature
	if side == perp.SideLong {
		sig, err = trader.OpenLongWithConditionalSwap(ctx, params)
	} else {
		sig, err = trader.OpenShortWithConditionalSwap(ctx, params)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runClose(ctx context.Context, cfg config.TraderConfig, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	tokenFlag := fs.String("token", "", "token of the position, symbol or mint")
	sideFlag := fs.String("side", "long", "long or short")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := resolveMint(client, *tokenFlag)
	if err != nil {
		return err
	}
	side := perp.SideLong
	if *sideFlag == "short" {
		side = perp.SideShort
	}

	custody, err := client.Book().CustodyPDA(token.Mint)
	if err != nil {
		return err
	}
	address, err := client.Book().PositionPDA(trader.Owner(), custody, side)
	if err != nil {
		return err
	}
	positions, err := client.Loader().FetchPositions(ctx, []solana.PublicKey{address})
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return fmt.Errorf("no open %s position for %s", side, token.Symbol)
	}
	pos := positions[0]

	quote, err := trader.GetExitPriceAndFee(ctx, pos)
	if err != nil {
		return err
	}
	exitSide := perp.SideShort
	if perp.Side(pos.State.Side) == perp.SideShort {
		exitSide = perp.SideLong
	}
	price := perp.ApplySlippage(quote.Price, cfg.SlippageBps, exitSide)

	sig, err := trader.ClosePosition(ctx, pos, price)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runStake(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("stake", flag.ContinueOnError)
	kindFlag := fs.String("kind", "lm", "lm (governance token) or lp (pool shares)")
	amountFlag := fs.Float64("amount", 0, "amount to stake (ui units)")
	lockedDaysFlag := fs.Uint("locked-days", 0, "lock duration in days, 0 for liquid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mint, decimals, err := stakedMint(client, *kindFlag)
	if err != nil {
		return err
	}
	amount := perp.ToNativeFloat(*amountFlag, decimals)

	var sig solana.Signature
	if *lockedDaysFlag > 0 {
		sig, err = trader.AddLockedStake(ctx, mint, amount, uint32(*lockedDaysFlag))
	} else {
		sig, err = trader.AddLiquidStake(ctx, mint, amount)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runUnstake(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("unstake", flag.ContinueOnError)
	kindFlag := fs.String("kind", "lm", "lm (governance token) or lp (pool shares)")
	amountFlag := fs.Float64("amount", 0, "liquid amount to withdraw (ui units)")
	lockedIndexFlag := fs.Int("locked-index", -1, "locked stake index to withdraw, -1 for liquid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mint, decimals, err := stakedMint(client, *kindFlag)
	if err != nil {
		return err
	}

	var sig solana.Signature
	if *lockedIndexFlag >= 0 {
		sig, err = trader.RemoveLockedStake(ctx, mint, uint32(*lockedIndexFlag))
	} else {
		amount := perp.ToNativeFloat(*amountFlag, decimals)
		sig, err = trader.RemoveLiquidStake(ctx, mint, amount)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runClaim(ctx context.Context, client *perp.Client, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	kindFlag := fs.String("kind", "lm", "lm (governance token) or lp (pool shares)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mint, _, err := stakedMint(client, *kindFlag)
	if err != nil {
		return err
	}
	sig, err := trader.ClaimStakes(ctx, mint)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func runProfile(ctx context.Context, trader *perp.Trader, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	nicknameFlag := fs.String("nickname", "", "profile nickname")
	sponsorFlag := fs.String("sponsor", "", "optional sponsor address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, initialized, err := trader.UserProfile(ctx, trader.Owner())
	if err != nil {
		return err
	}

	var sig solana.Signature
	if initialized {
		sig, err = trader.EditUserProfile(ctx, *nicknameFlag)
	} else {
		var sponsor *solana.PublicKey
		if *sponsorFlag != "" {
			pk, parseErr := solana.PublicKeyFromBase58(*sponsorFlag)
			if parseErr != nil {
				return fmt.Errorf("invalid sponsor: %w", parseErr)
			}
			sponsor = &pk
		}
		sig, err = trader.InitUserProfile(ctx, *nicknameFlag, sponsor)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func stakedMint(client *perp.Client, kind string) (solana.PublicKey, uint8, error) {
	switch kind {
	case "lm":
		return client.Book().LMTokenMint, perp.LMTokenDecimals, nil
	case "lp":
		return client.Book().LPTokenMint, perp.LPTokenDecimals, nil
	default:
		return solana.PublicKey{}, 0, fmt.Errorf("unknown staking kind %q (expected lm|lp)", kind)
	}
}
