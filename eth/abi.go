package eth

// ABI fragments of the contracts this client talks to. Only the methods
// used by the module are listed.

const giftManagerABI = `[
{"type":"function","name":"giftCounter","stateMutability":"view","inputs":[],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"gifts","stateMutability":"view",
 "inputs":[{"name":"","type":"uint256"}],
 "outputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},
  {"name":"amount","type":"uint256"},{"name":"giftTypeHash","type":"bytes32"},
  {"name":"messageHash","type":"bytes32"},{"name":"isCharity","type":"bool"},
  {"name":"redeemed","type":"bool"},{"name":"timestamp","type":"uint256"}]},
{"type":"function","name":"getCharities","stateMutability":"view","inputs":[],
 "outputs":[{"name":"ids","type":"uint256[]"},{"name":"addresses","type":"address[]"},
  {"name":"names","type":"bytes32[]"},{"name":"metadataURIs","type":"string[]"}]},
{"type":"function","name":"getFavorites","stateMutability":"view",
 "inputs":[{"name":"user","type":"address"}],
 "outputs":[{"name":"recipients","type":"address[]"},{"name":"names","type":"bytes32[]"},
  {"name":"giftCounts","type":"uint256[]"},{"name":"totalAmounts","type":"uint256[]"}]},
{"type":"function","name":"getTopGifters","stateMutability":"view","inputs":[],
 "outputs":[{"name":"addresses","type":"address[]"},{"name":"counts","type":"uint256[]"}]},
{"type":"function","name":"sendGift","stateMutability":"nonpayable",
 "inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},
  {"name":"giftTypeHash","type":"bytes32"},{"name":"messageHash","type":"bytes32"},
  {"name":"isCharity","type":"bool"}],"outputs":[]},
{"type":"function","name":"redeemGift","stateMutability":"nonpayable",
 "inputs":[{"name":"giftId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"addFavorite","stateMutability":"nonpayable",
 "inputs":[{"name":"recipient","type":"address"},{"name":"name","type":"bytes32"}],
 "outputs":[]},
{"type":"function","name":"addCharity","stateMutability":"nonpayable",
 "inputs":[{"name":"wallet","type":"address"},{"name":"name","type":"bytes32"},
  {"name":"metadataURI","type":"string"}],"outputs":[]},
{"type":"function","name":"removeCharity","stateMutability":"nonpayable",
 "inputs":[{"name":"charityId","type":"uint256"}],"outputs":[]}
]`

// Deployments before metadata moved to the content store returned a bytes32
// description per charity.
const legacyCharitiesABI = `[
{"type":"function","name":"getCharities","stateMutability":"view","inputs":[],
 "outputs":[{"name":"ids","type":"uint256[]"},{"name":"addresses","type":"address[]"},
  {"name":"names","type":"bytes32[]"},{"name":"descriptions","type":"bytes32[]"}]}
]`

const tokenABI = `[
{"type":"function","name":"allowance","stateMutability":"view",
 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view",
 "inputs":[{"name":"account","type":"address"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable",
 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
 "outputs":[{"name":"","type":"bool"}]}
]`
