package bank

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/halbornteam/solana-test-framework/constant"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/fixtures"
	"github.com/halbornteam/solana-test-framework/loader"
)

// NativeLoaderID owns the accounts of programs registered with a ProcessFunc.
var NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

// builtinPrograms returns the processors every bank starts with.
func builtinPrograms() map[solana.PublicKey]ProcessFunc {
	return map[solana.PublicKey]ProcessFunc{
		solana.SystemProgramID:                   processSystem,
		loader.BPFLoaderProgramID:                processLoaderV2,
		loader.BPFLoaderUpgradeableProgramID:     processUpgradeableLoader,
		fixtures.TokenProgramID:                  processToken,
		fixtures.Token2022ProgramID:              processToken,
		fixtures.AssociatedTokenAccountProgramID: processAssociatedTokenAccount,
	}
}

// FindProgramFile looks for name in $SBF_OUT_DIR, $BPF_OUT_DIR,
// tests/fixtures and the working directory, in that order.
func FindProgramFile(name string) (string, error) {
	var dirs []string
	for _, env := range constant.ProgramDirEnvVars {
		if dir := os.Getenv(env); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, constant.ProgramFixturesDir, ".")

	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", errors.NewIOError("find_program_file", "program file not found", os.ErrNotExist).
		WithContext("file", name).
		WithContext("searched", dirs)
}

// readProgramFile loads <name>.so and logs where it came from.
func readProgramFile(logger zerolog.Logger, name string) ([]byte, error) {
	path, err := FindProgramFile(name + ".so")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("read_program_file", "failed to read program file", err).
			WithContext("path", path)
	}

	event := logger.Info().Str("program", name).Str("path", path).Str("size", humanize.Bytes(uint64(len(data))))
	if info, err := os.Stat(path); err == nil {
		event = event.Str("modified", humanize.Time(info.ModTime()))
	}
	event.Msg("loaded BPF program")
	return data, nil
}
