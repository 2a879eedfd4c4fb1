package cli

import (
	"github.com/ppiankov/tokenatlas/internal/api"
	"github.com/ppiankov/tokenatlas/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token catalog over HTTP",
	Long: `Serve loads the token source and exposes it over HTTP:

  GET    /tokens[?tier=&q=]        catalog tree, flat map and counts
  POST   /tokens                   create a token {path, token}
  PUT    /tokens                   replace a token {path, token}
  DELETE /tokens[?path=]           delete a token, reporting dependents
  GET    /tokens/usage[?refresh=]  usage index across the corpus
  GET    /tokens/dependents?path=  tokens referencing a path
  POST   /tokens/reload            reload from the source
  GET    /healthz                  liveness and current generation

Example:
  tokenatlas serve --source ./tokens --corpus ./src
  tokenatlas serve --addr :8080 --persist`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().Bool("persist", false, "write mutations back to the token source")

	bindFlag("server.addr", serveCmd.Flags(), "addr")
	bindFlag("source.persist", serveCmd.Flags(), "persist")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, afero.NewOsFs())
	if _, err := p.Open(ctx); err != nil {
		return err
	}

	srv, err := api.NewServer(ctx, p, cfg)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}
