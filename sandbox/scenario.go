package sandbox

import (
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// BSC mainnet addresses used by the default scenario.
var (
	PancakeRouter       = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	PancakeFactory      = common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")
	PancakeInitCodeHash = common.HexToHash("0x00fb7f630766e6a796048ea87d01acd3068e8ff67d078148a3fa3f4a84f69bd5")

	ApeRouter       = common.HexToAddress("0xcF0feBd3f17CEf5b47b0cD257aCf6025c5BFf3b7")
	ApeFactory      = common.HexToAddress("0x0841BD0B734E4F5853f0dD8d7Ea041c241fb0Da6")
	ApeInitCodeHash = common.HexToHash("0xf4ccce374816856d11f00e4069e7cada164065686fbef53c6167a63ec2fd8c5b")

	CAKE = common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
	BUSD = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	WBNB = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	ADA  = common.HexToAddress("0x3EE2200Efb3400fAbB9AacF31297cBdD1d435D47")

	// LP holders whose positions the scenario migrates.
	CakeBusdHolder = common.HexToAddress("0x4facd9abd8d9d5c45ed4d1e76320cfff27141e11")
	WbnbHolder     = common.HexToAddress("0x14B2e8329b8e06BCD524eb114E23fAbD21910109")
	AdaWbnbHolder  = common.HexToAddress("0x87c1D4e5BaB13e483654B0748880fdc945007D40")

	Deployer     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	ApeProvider  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	ConverterAcc = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

const (
	Pancake = "pancakeswap"
	Ape     = "apeswap"
)

// DefaultScenario migrates four PancakeSwap positions (CAKE-BUSD, CAKE-WBNB,
// BUSD-WBNB, ADA-WBNB) into ApeSwap. ApeSwap already lists CAKE-BUSD at a
// slightly different price, so that migration leaves dust.
func DefaultScenario() *Config {
	migrate := func(a, b string, holder common.Address) MigrationConfig {
		return MigrationConfig{
			Exchange:        Pancake,
			TokenA:          a,
			TokenB:          b,
			Caller:          Deployer,
			ImpersonateFrom: holder,
			DeadlineMinutes: 20,
		}
	}
	return &Config{
		Block: state.BlockContext{Number: 17_000_000, Timestamp: 1_651_000_000},
		Tokens: []TokenConfig{
			{Symbol: "CAKE", Name: "PancakeSwap Token", Address: CAKE, Decimals: 18},
			{Symbol: "BUSD", Name: "BUSD Token", Address: BUSD, Decimals: 18},
			{Symbol: "WBNB", Name: "Wrapped BNB", Address: WBNB, Decimals: 18},
			{Symbol: "ADA", Name: "Cardano Token", Address: ADA, Decimals: 18},
		},
		Exchanges: []ExchangeConfig{
			{Name: Pancake, Router: PancakeRouter, Factory: PancakeFactory, InitCodeHash: PancakeInitCodeHash, LPName: "Pancake LPs", LPSymbol: "Cake-LP"},
			{Name: Ape, Router: ApeRouter, Factory: ApeFactory, InitCodeHash: ApeInitCodeHash, LPName: "ApeSwapFinance LPs", LPSymbol: "APE-LP"},
		},
		Pools: []PoolConfig{
			{Exchange: Pancake, TokenA: "CAKE", TokenB: "BUSD", AmountA: "250000", AmountB: "2500000", Provider: CakeBusdHolder},
			{Exchange: Pancake, TokenA: "CAKE", TokenB: "WBNB", AmountA: "300000", AmountB: "7500", Provider: WbnbHolder},
			{Exchange: Pancake, TokenA: "BUSD", TokenB: "WBNB", AmountA: "4000000", AmountB: "10000", Provider: WbnbHolder},
			{Exchange: Pancake, TokenA: "ADA", TokenB: "WBNB", AmountA: "900000", AmountB: "2250.5", Provider: AdaWbnbHolder},
			{Exchange: Ape, TokenA: "CAKE", TokenB: "BUSD", AmountA: "1000", AmountB: "10150", Provider: ApeProvider},
		},
		Converter: ConverterConfig{
			Address:     ConverterAcc,
			Owner:       Deployer,
			Destination: Ape,
			Whitelist:   []string{Pancake},
			DustPolicy:  "retain",
		},
		Migrations: []MigrationConfig{
			migrate("CAKE", "BUSD", CakeBusdHolder),
			migrate("CAKE", "WBNB", WbnbHolder),
			migrate("BUSD", "WBNB", WbnbHolder),
			migrate("ADA", "WBNB", AdaWbnbHolder),
		},
	}
}
