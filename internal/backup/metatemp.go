package backup

import "os"

// WriteMetaTempFile writes meta's JSON encoding to a fresh temp file and
// returns its path, for passing to NotifyArchiveReady.
func WriteMetaTempFile(meta Meta) (string, error) {
	data, err := meta.Encode()
	if err != nil {
		return "", IOFailure(err, "encoding meta.json for notification")
	}
	f, err := os.CreateTemp("", "wasp-backup-meta-*.json")
	if err != nil {
		return "", IOFailure(err, "creating meta temp file")
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", IOFailure(err, "writing meta temp file")
	}
	return f.Name(), nil
}
