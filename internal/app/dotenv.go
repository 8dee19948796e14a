package app

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nuetzliches/monitord/internal/config"
)

// mergeDotenv adds the variables of a .env file to env. A variable that env
// already holds with a non-empty value keeps it.
func mergeDotenv(path string, env config.Env) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf(".env line %d: missing '='", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf(".env line %d: empty key", lineNo)
		}
		val, err = unquoteDotenvValue(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf(".env line %d: %w", lineNo, err)
		}

		if cur, ok := env[key]; ok && cur != "" {
			continue
		}
		env[key] = val
	}
	return sc.Err()
}

func unquoteDotenvValue(val string) (string, error) {
	if len(val) < 2 {
		return val, nil
	}
	switch {
	case val[0] == '"' && val[len(val)-1] == '"':
		return strconv.Unquote(val)
	case val[0] == '\'' && val[len(val)-1] == '\'':
		return val[1 : len(val)-1], nil
	default:
		return val, nil
	}
}
