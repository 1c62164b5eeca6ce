// Package relaytest provides an in-memory relayer for tests.
//
// The server keeps one real Poseidon Merkle tree per asset, so roots and
// paths it serves are mutually consistent.
package relaytest

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"privacycash/internal/relay"
	"privacycash/internal/shielded"
)

const nativeTree = ""

type leaf struct {
	commitment *big.Int
	output     []byte
}

type failure struct {
	status int
	msg    string
}

// Server is a fake relayer backed by httptest.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	trees       map[string][]leaf
	confirmed   map[string]bool
	config      map[string]any
	failures    map[string]failure
	hits        map[string]int
	deposits    []relay.DepositRequest
	withdrawals []relay.WithdrawParams

	// ConfirmOnSubmit makes submitted withdrawal outputs visible to the
	// existence check immediately.
	ConfirmOnSubmit bool
}

// New starts a fake relayer with a zero fee schedule.
func New() *Server {
	s := &Server{
		trees:     map[string][]leaf{},
		confirmed: map[string]bool{},
		failures:  map[string]failure{},
		hits:      map[string]int{},
		config: map[string]any{
			"withdraw_fee_rate": "0",
			"deposit_fee_rate":  "0",
			"rent_fees":         map[string]uint64{"sol": 0, "usdc": 0, "usdt": 0},
		},
		ConfirmOnSubmit: true,
	}
	r := chi.NewRouter()
	r.Use(s.failIfArmed)
	r.Get("/merkle/root", s.handleRoot)
	r.Get("/merkle/proof/{commitment}", s.handleProof)
	r.Get("/config", s.handleConfig)
	r.Get("/utxos/range", s.handleRange)
	r.Post("/utxos/indices", s.handleIndices)
	r.Get("/utxos/check/{output}", s.handleCheck)
	r.Post("/deposit", s.handleDeposit)
	r.Post("/deposit/spl", s.handleDeposit)
	r.Post("/withdraw", s.handleWithdraw)
	r.Post("/withdraw/spl", s.handleWithdraw)
	s.Server = httptest.NewServer(r)
	return s
}

// Client returns a relay client pointed at the server.
func (s *Server) Client() *relay.Client {
	c, err := relay.NewClient(s.URL, relay.WithHTTPClient(s.Server.Client()))
	if err != nil {
		panic(err)
	}
	return c
}

func treeKey(token string) string {
	if token == "sol" {
		return nativeTree
	}
	return token
}

// AddLeaf appends a commitment and its encrypted output to an asset's tree
// and returns the leaf index.
func (s *Server) AddLeaf(asset shielded.Asset, commitment *big.Int, output []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := treeKey(assetToken(asset))
	s.trees[k] = append(s.trees[k], leaf{commitment: commitment, output: output})
	s.confirmed[confirmKey(k, output)] = true
	return uint64(len(s.trees[k]) - 1)
}

// AddUtxo places u at the next position of its asset's tree, encrypts it
// under keys and appends it. It returns the encrypted output.
func (s *Server) AddUtxo(keys *shielded.EncryptionService, u *shielded.Utxo) ([]byte, error) {
	asset, err := shielded.LookupAsset(u.Mint())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := treeKey(assetToken(asset))
	u.SetIndex(uint64(len(s.trees[k])))
	out, err := keys.EncryptUtxo(u)
	if err != nil {
		return nil, err
	}
	cm, err := u.Commitment()
	if err != nil {
		return nil, err
	}
	s.trees[k] = append(s.trees[k], leaf{commitment: cm, output: out})
	s.confirmed[confirmKey(k, out)] = true
	return out, nil
}

// AddOutput appends an encrypted output whose commitment the test does not care about.
func (s *Server) AddOutput(asset shielded.Asset, output []byte) uint64 {
	return s.AddLeaf(asset, big.NewInt(0), output)
}

// SetConfig overrides one key of the fee schedule.
func (s *Server) SetConfig(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.config, key)
		return
	}
	s.config[key] = value
}

// Fail makes every request to path answer with status and msg.
func (s *Server) Fail(path string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, msg: msg}
}

// Hits returns how many requests reached a route pattern.
func (s *Server) Hits(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pattern]
}

// Deposits returns the deposit submissions received so far.
func (s *Server) Deposits() []relay.DepositRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.DepositRequest(nil), s.deposits...)
}

// Withdrawals returns the withdrawal submissions received so far.
func (s *Server) Withdrawals() []relay.WithdrawParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.WithdrawParams(nil), s.withdrawals...)
}

// Root computes the current root of an asset's tree.
func (s *Server) Root(asset shielded.Asset) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, _ := s.levels(treeKey(assetToken(asset)))
	return root
}

func assetToken(a shielded.Asset) string {
	if a.IsNative() {
		return nativeTree
	}
	return a.Name
}

// levels returns the root and every level of the tree, leaves first.
// Callers hold s.mu.
func (s *Server) levels(key string) (*big.Int, [][]*big.Int) {
	zeros, err := shielded.Zeros()
	if err != nil {
		panic(err)
	}
	level := make([]*big.Int, len(s.trees[key]))
	for i, l := range s.trees[key] {
		level[i] = l.commitment
	}
	all := [][]*big.Int{level}
	for d := 0; d < shielded.TreeDepth; d++ {
		next := make([]*big.Int, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := zeros[d]
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			h, err := shielded.Poseidon(left, right)
			if err != nil {
				panic(err)
			}
			next[i] = h
		}
		level = next
		all = append(all, level)
	}
	if len(level) == 0 {
		return new(big.Int).Set(zeros[shielded.TreeDepth]), all
	}
	return level[0], all
}

func (s *Server) failIfArmed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.URL.Path]
		s.mu.Unlock()
		if ok {
			writeJSON(w, f.status, map[string]string{"error": f.msg})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hit(r *http.Request) {
	pattern := chi.RouteContext(r.Context()).RoutePattern()
	s.hits[pattern]++
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	key := treeKey(r.URL.Query().Get("token"))
	root, _ := s.levels(key)
	writeJSON(w, http.StatusOK, map[string]any{
		"root":      root.String(),
		"nextIndex": len(s.trees[key]),
	})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	key := treeKey(r.URL.Query().Get("token"))
	cm, ok := new(big.Int).SetString(chi.URLParam(r, "commitment"), 10)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad commitment"})
		return
	}
	index := -1
	for i, l := range s.trees[key] {
		if l.commitment.Cmp(cm) == 0 {
			index = i
			break
		}
	}
	if index < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "commitment not found"})
		return
	}
	zeros, _ := shielded.Zeros()
	_, levels := s.levels(key)
	elements := make([]string, shielded.TreeDepth)
	indices := make([]uint8, shielded.TreeDepth)
	pos := index
	for d := 0; d < shielded.TreeDepth; d++ {
		sibling := zeros[d]
		if sp := pos ^ 1; sp < len(levels[d]) {
			sibling = levels[d][sp]
		}
		elements[d] = sibling.String()
		indices[d] = uint8(pos & 1)
		pos >>= 1
	}
	writeJSON(w, http.StatusOK, map[string]any{"pathElements": elements, "pathIndices": indices})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	writeJSON(w, http.StatusOK, s.config)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	q := r.URL.Query()
	start, err1 := strconv.Atoi(q.Get("start"))
	end, err2 := strconv.Atoi(q.Get("end"))
	if err1 != nil || err2 != nil || start < 0 || end < start {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad range"})
		return
	}
	leaves := s.trees[treeKey(q.Get("token"))]
	out := []string{}
	for i := start; i < end && i < len(leaves); i++ {
		out = append(out, hex.EncodeToString(leaves[i].output))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"encrypted_outputs": out,
		"hasMore":           end < len(leaves),
		"total":             len(leaves),
	})
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	var req struct {
		EncryptedOutputs []string `json:"encrypted_outputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	indices := make([]int, len(req.EncryptedOutputs))
	for i, o := range req.EncryptedOutputs {
		indices[i] = -1
		for _, leaves := range s.trees {
			for j, l := range leaves {
				if hex.EncodeToString(l.output) == o {
					indices[i] = j
				}
			}
		}
		if indices[i] < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown output " + o})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"indices": indices})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	key := treeKey(r.URL.Query().Get("token")) + "/" + chi.URLParam(r, "output")
	writeJSON(w, http.StatusOK, map[string]bool{"exists": s.confirmed[key]})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	var req relay.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.deposits = append(s.deposits, req)
	writeJSON(w, http.StatusOK, map[string]any{"signature": "deposit-sig-" + strconv.Itoa(len(s.deposits)), "success": true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hit(r)
	var req relay.WithdrawParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	k := nativeTree
	if req.MintAddress != "" {
		asset, err := shielded.LookupAsset(req.MintAddress)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		k = treeKey(assetToken(asset))
	}
	s.withdrawals = append(s.withdrawals, req)
	if s.ConfirmOnSubmit {
		s.confirmed[confirmKey(k, req.EncryptedOutput1)] = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"signature": "withdraw-sig-" + strconv.Itoa(len(s.withdrawals)), "success": true})
}

// ConfirmOutput marks an encrypted output as present in an asset's log.
func (s *Server) ConfirmOutput(asset shielded.Asset, output []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[confirmKey(treeKey(assetToken(asset)), output)] = true
}

// confirmKey scopes an output to the tree it was appended to.
func confirmKey(tree string, output []byte) string {
	return tree + "/" + hex.EncodeToString(output)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
