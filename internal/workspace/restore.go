package workspace

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

var restoreTemplate = template.Must(template.New("restore").
	Funcs(template.FuncMap{"quote": shellQuote}).
	Parse(`#!/bin/sh
# Restores {{.Root}} from a stagedit backup.
# Usage: restore.sh [backup-dir]
# Without an argument the newest backup in {{.Backups}} is used.
set -e

ROOT={{quote .Root}}
BACKUPS={{quote .Backups}}
DEFAULT={{quote .Default}}

if [ -n "$1" ]; then
    BACKUP="$1"
else
    BACKUP=$(ls -1d "$BACKUPS"/*/ 2>/dev/null | sort | tail -n 1)
    BACKUP=${BACKUP%/}
    if [ -z "$BACKUP" ]; then
        BACKUP="$DEFAULT"
    fi
fi

if [ ! -d "$BACKUP" ]; then
    echo "backup directory not found: $BACKUP" >&2
    exit 1
fi

cp -R "$BACKUP"/. "$ROOT"/
echo "restored $ROOT from $BACKUP"
`))

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func writeRestoreScript(path, root, backups, defaultBackup string) error {
	var buf bytes.Buffer
	err := restoreTemplate.Execute(&buf, struct {
		Root, Backups, Default string
	}{root, backups, defaultBackup})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}
