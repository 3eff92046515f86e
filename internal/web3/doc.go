// Package web3 houses blockchain connectivity primitives for the adapter
// layer: the Account abstraction used to sign and submit transactions, chain
// metadata tables (human readable names, numeric ids, native currency
// symbols), and multi-chain endpoint configuration helpers. Concrete EVM
// connectivity lives in the ethereum subpackage.
package web3
