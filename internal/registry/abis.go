package registry

// ABI fragments for the hook's collaborators.
const (
	ERC20ABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	// AavePoolABI covers the Aave V3 Pool supply entry point.
	AavePoolABI = `[
		{"name":"supply","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"outputs":[]}
	]`

	// CometABI covers the Compound V3 (Comet) supplyTo entry point.
	CometABI = `[
		{"name":"supplyTo","type":"function","stateMutability":"nonpayable","inputs":[{"name":"dst","type":"address"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
	]`

	// FluidVaultABI covers the ERC4626-style deposit of a Fluid lending vault.
	FluidVaultABI = `[
		{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"assets_","type":"uint256"},{"name":"receiver_","type":"address"}],"outputs":[{"name":"shares_","type":"uint256"}]}
	]`
)
