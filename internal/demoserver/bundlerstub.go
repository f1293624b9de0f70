package demoserver

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

// BundlerRPCHandler is a canned JSON-RPC 2.0 bundler used by useropctl's
// local-dev mode: it accepts the methods the builder consumes and answers
// with fixed values, so the client pipeline can be run end to end without a
// real bundler. Nothing is forwarded on chain.
func (h *Handler) BundlerRPCHandler(c *gin.Context) {
	var req struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      json.RawMessage   `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON-RPC request"})
		return
	}

	respond := func(result any) {
		c.JSON(http.StatusOK, gin.H{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
	fail := func(code int, msg string) {
		c.JSON(http.StatusOK, gin.H{"jsonrpc": "2.0", "id": req.ID, "error": gin.H{"code": code, "message": msg}})
	}

	switch req.Method {
	case "thirdweb_getUserOperationGasPrice":
		respond(gin.H{
			"maxFeePerGas":         "0x77359400", // 2 gwei
			"maxPriorityFeePerGas": "0x3b9aca00", // 1 gwei
		})

	case "eth_estimateUserOperationGas":
		respond(gin.H{
			"preVerificationGas":   "0xc350",
			"verificationGasLimit": "0x186a0",
			"callGasLimit":         "0x30d40",
		})

	case "pm_sponsorUserOperation":
		// No sponsoring paymaster in the stub; the builder treats the empty
		// object as "proceed unsponsored".
		respond(gin.H{})

	case "eth_sendUserOperation":
		if len(req.Params) == 0 {
			fail(-32602, "missing user operation")
			return
		}
		respond(hexutil.Encode(ethcrypto.Keccak256(req.Params[0])))

	case "eth_getUserOperationReceipt":
		if len(req.Params) == 0 {
			fail(-32602, "missing userOpHash")
			return
		}
		var userOpHash string
		_ = json.Unmarshal(req.Params[0], &userOpHash)
		respond(gin.H{
			"userOpHash": userOpHash,
			"success":    true,
			"receipt": gin.H{
				// Derived rather than random so repeated polls agree.
				"transactionHash": hexutil.Encode(ethcrypto.Keccak256([]byte(userOpHash))),
			},
		})

	case "zk_paymasterData":
		respond(gin.H{"paymaster": "", "input": ""})

	case "zk_broadcastTransaction":
		if len(req.Params) == 0 {
			fail(-32602, "missing transaction")
			return
		}
		respond(hexutil.Encode(ethcrypto.Keccak256(req.Params[0])))

	default:
		fail(-32601, "method not found: "+req.Method)
	}
}
