package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
)

// WriteJSON writes the full document result as indented JSON.
func WriteJSON(w io.Writer, result *model.DocumentResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(result), "export: write json")
}
