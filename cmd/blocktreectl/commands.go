package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blocktree/blocktree/blockchain"
	"github.com/blocktree/blocktree/blocktree"
	"github.com/blocktree/blocktree/securetree"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"generate-key":       cmdGenerateKey,
	"generate-box-key":   cmdGenerateBoxKey,
	"write-block":        cmdWriteBlock,
	"read-block":         cmdReadBlock,
	"list-blocks":        cmdListBlocks,
	"count-blocks":       cmdCountBlocks,
	"write-tree-block":   cmdWriteTreeBlock,
	"read-tree-block":    cmdReadTreeBlock,
	"parent-scan":        cmdParentScan,
	"child-scan":         cmdChildScan,
	"get-parent-block":   cmdGetParentBlock,
	"validate-blocktree": cmdValidateBlocktree,
	"install-root":       cmdInstallRoot,
	"create-zone":        cmdCreateZone,
	"create-identity":    cmdCreateIdentity,
	"create-collection":  cmdCreateCollection,
	"set-keys":           cmdSetKeys,
	"set-options":        cmdSetOptions,
	"add-record":         cmdAddRecord,
	"revoke-keys":        cmdRevokeKeys,
	"read-secure-block":  cmdReadSecureBlock,
	"validate-signature": cmdValidateSignature,
	"signature-trace":    cmdSignatureTrace,
	"read-secret":        cmdReadSecret,
	"inspect":            cmdInspect,
}

func parseHex(s string) ([]byte, error) {
	if s == "-" || s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func mustHexArg(args []string, i int, name string) ([]byte, []string, error) {
	if i >= len(args) {
		return nil, nil, fmt.Errorf("missing required argument %s", name)
	}
	b, err := parseHex(args[i])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, args, nil
}

func printHash(label string, h []byte) {
	fmt.Printf("%s: %s\n", label, hex.EncodeToString(h))
}

// keyFile is the two-line "pubkey-hex\nprivkey-hex" layout written by
// generate-key and read back by loadSigner/loadKeyPair.
func writeKeyFile(path string, pub, priv []byte) error {
	content := hex.EncodeToString(pub) + "\n" + hex.EncodeToString(priv) + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}

func loadKeyPair(path string) (pub, priv []byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read key file: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return nil, nil, fmt.Errorf("key file %s: expected pubkey and privkey lines", path)
	}
	pub, err = hex.DecodeString(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("key file %s: bad pubkey: %w", path, err)
	}
	priv, err = hex.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, nil, fmt.Errorf("key file %s: bad privkey: %w", path, err)
	}
	return pub, priv, nil
}

func loadSigner(a *app, keyPath string) (securetree.Signer, []byte, error) {
	pub, priv, err := loadKeyPair(keyPath)
	if err != nil {
		return nil, nil, err
	}
	signer := func(req securetree.SignRequest) ([]byte, []byte, error) {
		data := append(append(append([]byte{}, req.Prev...), req.Parent...), byte(req.Type))
		data = append(data, req.Payload...)
		sig, err := a.crypto.Sign(priv, data)
		if err != nil {
			return nil, nil, err
		}
		return pub, sig, nil
	}
	return signer, pub, nil
}

// parseKeyEntries parses repeated "action:pubhex:validfrom:validto" specs
// into a KeySet, used by every mutation command's -authkey flag.
func parseKeyEntries(specs []string) (securetree.KeySet, error) {
	ks := securetree.KeySet{}
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid -authkey %q: expected action:pubhex:validfrom:validto", spec)
		}
		pub, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid -authkey %q: bad pubkey: %w", spec, err)
		}
		from, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid -authkey %q: bad valid_from: %w", spec, err)
		}
		var to uint64
		if parts[3] == "never" || parts[3] == "" {
			to = securetree.NoExpiry
		} else {
			to, err = strconv.ParseUint(parts[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid -authkey %q: bad valid_to: %w", spec, err)
			}
		}
		action := securetree.Action(parts[0])
		ks[action] = append(ks[action], securetree.KeyEntry{PubKey: pub, ValidFrom: from, ValidTo: to})
	}
	return ks, nil
}

// parseOptionEntries parses repeated "key=value" specs into an
// OptionsRecord.
func parseOptionEntries(specs []string) (securetree.OptionsRecord, error) {
	opts := securetree.OptionsRecord{}
	for _, spec := range specs {
		k, v, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -opt %q: expected key=value", spec)
		}
		opts[k] = v
	}
	return opts, nil
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func cmdGenerateKey(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	out := fs.String("out", "", "output key file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pub, priv, err := a.crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	if *out == "" {
		fmt.Println("pubkey:", hex.EncodeToString(pub))
		fmt.Println("privkey:", hex.EncodeToString(priv))
		return nil
	}
	return writeKeyFile(*out, pub, priv)
}

func cmdGenerateBoxKey(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("generate-box-key", flag.ContinueOnError)
	out := fs.String("out", "", "output key file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pub, priv, err := a.crypto.GenerateBoxKeyPair()
	if err != nil {
		return err
	}
	if *out == "" {
		fmt.Println("pubkey:", hex.EncodeToString(pub))
		fmt.Println("privkey:", hex.EncodeToString(priv))
		return nil
	}
	return writeKeyFile(*out, pub, priv)
}

func cmdWriteBlock(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write-block <prev-hex|-> <data-hex>")
	}
	prev, err := parseHex(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	hash, err := a.chain.WriteBlock(ctx, blockchain.WriteInput{Prev: prev, Data: data}, blockchain.WriteOptions{})
	a.mx.ObserveWrite("L1", err == nil)
	if err != nil {
		return err
	}
	printHash("hash", hash)
	return nil
}

func cmdReadBlock(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	block, err := a.chain.ReadBlock(ctx, hash)
	if err != nil {
		return err
	}
	if block == nil {
		fmt.Println("null")
		return nil
	}
	fmt.Printf("prev: %s\nnonce: %d\ntimestamp: %d\ndata: %s\n",
		hex.EncodeToString(block.Prev), block.Nonce, block.Timestamp, hex.EncodeToString(block.Data))
	return nil
}

func cmdListBlocks(ctx context.Context, a *app, args []string) error {
	var prefix []byte
	if len(args) > 0 {
		p, err := parseHex(args[0])
		if err != nil {
			return err
		}
		prefix = p
	}
	hashes, err := a.chain.ListBlocks(ctx, prefix)
	if err != nil {
		return err
	}
	for _, h := range hashes {
		fmt.Println(hex.EncodeToString(h))
	}
	return nil
}

func cmdCountBlocks(ctx context.Context, a *app, args []string) error {
	n, err := a.chain.CountBlocks(ctx)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func cmdWriteTreeBlock(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("write-tree-block", flag.ContinueOnError)
	layer := fs.Int("layer", 0, "layer tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 3 {
		return fmt.Errorf("usage: write-tree-block [-layer n] <prev-hex|-> <parent-hex|-> <data-hex>")
	}
	prev, err := parseHex(rest[0])
	if err != nil {
		return err
	}
	parent, err := parseHex(rest[1])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(rest[2])
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	hash, err := a.tree.WriteBlock(ctx, blocktree.WriteInput{Prev: prev, Parent: parent, Data: data, Layer: byte(*layer)}, blocktree.WriteOptions{})
	a.mx.ObserveWrite("L2", err == nil)
	if err != nil {
		return err
	}
	printHash("hash", hash)
	return nil
}

func cmdReadTreeBlock(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	block, err := a.tree.ReadBlock(ctx, hash)
	if err != nil {
		return err
	}
	if block == nil {
		fmt.Println("null")
		return nil
	}
	fmt.Printf("prev: %s\nparent: %s\nlayer: %d\ntimestamp: %d\npayload: %s\n",
		hex.EncodeToString(block.Prev), hex.EncodeToString(block.Parent), block.Layer, block.Timestamp, hex.EncodeToString(block.Payload))
	return nil
}

func cmdParentScan(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	blocks, err := a.tree.PerformParentScan(ctx, hash)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		fmt.Println(hex.EncodeToString(b.Hash))
	}
	return nil
}

func cmdChildScan(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	blocks, err := a.tree.PerformChildScan(ctx, hash)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		fmt.Println(hex.EncodeToString(b.Hash))
	}
	return nil
}

func cmdGetParentBlock(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	parent, err := a.tree.GetParentBlock(ctx, hash)
	if err != nil {
		return err
	}
	printHash("parent", parent)
	return nil
}

func cmdValidateBlocktree(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	report, err := a.tree.ValidateBlocktree(ctx, hash)
	if err != nil {
		return err
	}
	fmt.Printf("valid: %t\nblocks: %d\n", report.IsValid, report.BlockCount)
	if !report.IsValid {
		fmt.Printf("reason: %s\nblock: %s\n", report.Reason, hex.EncodeToString(report.Block))
	}
	return nil
}

func cmdInstallRoot(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("install-root", flag.ContinueOnError)
	keyPath := fs.String("key", "", "root signing key file (from generate-key)")
	var rootKeys, zoneKeys stringList
	fs.Var(&rootKeys, "rootkey", "action:pubhex:validfrom:validto for the root's own authorized keys")
	fs.Var(&zoneKeys, "zonekey", "action:pubhex:validfrom:validto for the root zone's initial authorized keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" {
		return fmt.Errorf("-key is required")
	}
	signer, _, err := loadSigner(a, *keyPath)
	if err != nil {
		return err
	}
	rootKeySet, err := parseKeyEntries(rootKeys)
	if err != nil {
		return err
	}
	zoneKeySet, err := parseKeyEntries(zoneKeys)
	if err != nil {
		return err
	}
	rootHash, zoneHash, err := a.secure.InstallRoot(ctx, rootKeySet, zoneKeySet, signer)
	a.mx.ObserveWrite("L3", err == nil)
	if err != nil {
		return err
	}
	printHash("root", rootHash)
	printHash("zone", zoneHash)
	return nil
}

func parseNestFlags(fs *flag.FlagSet, args []string) (keyPath string, opts []string, keys []string, rest []string, err error) {
	kp := fs.String("key", "", "signing key file (from generate-key)")
	var optFlags, keyFlags stringList
	fs.Var(&optFlags, "opt", "key=value metadata, repeatable")
	fs.Var(&keyFlags, "authkey", "action:pubhex:validfrom:validto, repeatable")
	if err = fs.Parse(args); err != nil {
		return
	}
	return *kp, optFlags, keyFlags, fs.Args(), nil
}

func cmdCreateZone(ctx context.Context, a *app, args []string) error { return nestCommand(ctx, a, args, a.secure.CreateZone) }
func cmdCreateIdentity(ctx context.Context, a *app, args []string) error {
	return nestCommand(ctx, a, args, a.secure.CreateIdentity)
}
func cmdCreateCollection(ctx context.Context, a *app, args []string) error {
	return nestCommand(ctx, a, args, a.secure.CreateCollection)
}

func nestCommand(ctx context.Context, a *app, args []string, fn func(context.Context, securetree.CreateInput) ([]byte, error)) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	keyPath, optSpecs, keySpecs, rest, err := parseNestFlags(fs, args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: create-* [-key path] [-opt k=v]... [-authkey spec]... <parent-hex>")
	}
	if keyPath == "" {
		return fmt.Errorf("-key is required")
	}
	parent, err := hex.DecodeString(rest[0])
	if err != nil {
		return fmt.Errorf("invalid parent: %w", err)
	}
	signer, _, err := loadSigner(a, keyPath)
	if err != nil {
		return err
	}
	opts, err := parseOptionEntries(optSpecs)
	if err != nil {
		return err
	}
	keys, err := parseKeyEntries(keySpecs)
	if err != nil {
		return err
	}
	hash, err := fn(ctx, securetree.CreateInput{Block: parent, Sign: signer, Options: opts, Keys: keys})
	a.mx.ObserveWrite("L3", err == nil)
	if err != nil {
		return err
	}
	printHash("hash", hash)
	return nil
}

func cmdSetKeys(ctx context.Context, a *app, args []string) error { return extendCommand(ctx, a, args, a.secure.SetKeys) }
func cmdSetOptions(ctx context.Context, a *app, args []string) error {
	return extendCommand(ctx, a, args, a.secure.SetOptions)
}
func cmdAddRecord(ctx context.Context, a *app, args []string) error {
	return extendCommand(ctx, a, args, a.secure.AddRecord)
}

func extendCommand(ctx context.Context, a *app, args []string, fn func(context.Context, securetree.ExtendInput) ([]byte, error)) error {
	fs := flag.NewFlagSet("extend", flag.ContinueOnError)
	keyPath, optSpecs, keySpecs, rest, err := parseNestFlags(fs, args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: set-keys|set-options|add-record [-key path] [-opt k=v]... [-authkey spec]... <block-hex>")
	}
	if keyPath == "" {
		return fmt.Errorf("-key is required")
	}
	block, err := hex.DecodeString(rest[0])
	if err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	signer, _, err := loadSigner(a, keyPath)
	if err != nil {
		return err
	}
	opts, err := parseOptionEntries(optSpecs)
	if err != nil {
		return err
	}
	keys, err := parseKeyEntries(keySpecs)
	if err != nil {
		return err
	}
	hash, err := fn(ctx, securetree.ExtendInput{Block: block, Sign: signer, Options: opts, Keys: keys})
	a.mx.ObserveWrite("L3", err == nil)
	if err != nil {
		return err
	}
	printHash("hash", hash)
	return nil
}

func cmdRevokeKeys(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("revoke-keys", flag.ContinueOnError)
	keyPath := fs.String("key", "", "signing key file (from generate-key)")
	action := fs.String("action", "write", "action whose key is being revoked (read|write)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: revoke-keys [-key path] [-action read|write] <block-hex> <revoked-pubkey-hex>")
	}
	if *keyPath == "" {
		return fmt.Errorf("-key is required")
	}
	block, err := hex.DecodeString(rest[0])
	if err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	revoked, err := hex.DecodeString(rest[1])
	if err != nil {
		return fmt.Errorf("invalid pubkey: %w", err)
	}
	signer, _, err := loadSigner(a, *keyPath)
	if err != nil {
		return err
	}
	hash, err := a.secure.RevokeKeys(ctx, block, signer, securetree.Action(*action), revoked)
	a.mx.ObserveWrite("L3", err == nil)
	if err != nil {
		return err
	}
	printHash("hash", hash)
	return nil
}

func cmdReadSecureBlock(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	block, err := a.secure.ReadSecureBlock(ctx, hash)
	if err != nil {
		return err
	}
	if block == nil {
		fmt.Println("null")
		return nil
	}
	fmt.Printf("type: %s\nprev: %s\nparent: %s\ntimestamp: %d\nsigner: %s\n",
		block.Type, hex.EncodeToString(block.Prev), hex.EncodeToString(block.Parent),
		block.Timestamp, hex.EncodeToString(block.SignerPub))
	for k, v := range block.Options {
		fmt.Printf("option[%s]: %s\n", k, v)
	}
	for action, entries := range block.KeySet {
		for _, e := range entries {
			fmt.Printf("key[%s]: %s valid_from=%d valid_to=%d\n", action, hex.EncodeToString(e.PubKey), e.ValidFrom, e.ValidTo)
		}
	}
	return nil
}

func cmdValidateSignature(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	ok, err := a.secure.ValidateSignature(ctx, hash)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

func cmdSignatureTrace(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	trace, err := a.secure.PerformSignatureTrace(ctx, hash)
	if err != nil {
		return err
	}
	a.mx.ObserveSignatureTraceDepth(len(trace.ChainRoots))
	fmt.Printf("action: %s\nkey: %s\n", trace.Action, hex.EncodeToString(trace.Entry.PubKey))
	for i, root := range trace.ChainRoots {
		fmt.Printf("level[%d]: %s\n", i, hex.EncodeToString(root))
	}
	return nil
}

func cmdReadSecret(ctx context.Context, a *app, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: read-secret <block-hex> <caller-pub-hex> <trusted-key-hex> <zone-priv-hex>")
	}
	block, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	callerPub, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid caller pubkey: %w", err)
	}
	trustedKey, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid trusted key: %w", err)
	}
	zonePriv, err := hex.DecodeString(args[3])
	if err != nil {
		return fmt.Errorf("invalid zone priv key: %w", err)
	}
	secrets, err := a.secure.ReadSecret(ctx, block, callerPub, trustedKey, zonePriv, a.broker)
	if err != nil {
		return err
	}
	for _, s := range secrets {
		fmt.Println(hex.EncodeToString(s))
	}
	return nil
}

func cmdInspect(ctx context.Context, a *app, args []string) error {
	hash, _, err := mustHexArg(args, 0, "hash")
	if err != nil {
		return err
	}
	l1, err := a.chain.ReadBlock(ctx, hash)
	if err != nil {
		return err
	}
	if l1 == nil {
		fmt.Println("null")
		return nil
	}
	fmt.Println("--- L1 ---")
	fmt.Printf("prev: %s\nnonce: %d\ntimestamp: %d\n", hex.EncodeToString(l1.Prev), l1.Nonce, l1.Timestamp)

	l2, err := a.tree.ReadBlock(ctx, hash)
	if err != nil {
		return err
	}
	fmt.Println("--- L2 ---")
	fmt.Printf("parent: %s\nlayer: %d\n", hex.EncodeToString(l2.Parent), l2.Layer)

	l3, err := a.secure.ReadSecureBlock(ctx, hash)
	if err != nil {
		return err
	}
	fmt.Println("--- L3 ---")
	fmt.Printf("type: %s\nsigner: %s\n", l3.Type, hex.EncodeToString(l3.SignerPub))
	for k, v := range l3.Options {
		fmt.Printf("option[%s]: %s\n", k, v)
	}
	return nil
}
