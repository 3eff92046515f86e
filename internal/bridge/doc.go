// Package bridge implements the cross-chain token bridge adapter built on the
// deBridge DLN protocol. It contains the multi-step bridging orchestrator (a
// session-scoped state machine re-entered once per LLM turn), the token
// directory cache, route validation, quote preparation, and the ERC-20
// approval flow. All user-visible outcomes are folded into the uniform
// adapter.Result shape; no error escapes the bridge_token tool boundary.
package bridge
