package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/model"
	"github.com/open-supply/facility-registry/internal/rowparse"
	"github.com/open-supply/facility-registry/internal/store"
)

var (
	uploadFile        string
	uploadOrg         string
	uploadName        string
	uploadDescription string
	uploadReplaces    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a facility list CSV",
	Long:  "Registers a new facility list and stores every data row verbatim as an UPLOADED item. The first line of the file must be a header naming at least the country, name, and address columns.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		header, rows, err := readCSVLines(uploadFile)
		if err != nil {
			return err
		}
		if err := rowparse.ValidateHeader(header); err != nil {
			return err
		}

		list := &model.List{
			ID:             uuid.New().String(),
			OrganizationID: uploadOrg,
			Name:           uploadName,
			Description:    uploadDescription,
			Header:         header,
			ReplacesID:     uploadReplaces,
			IsActive:       true,
		}
		items := make([]*model.Item, 0, len(rows))
		for i, row := range rows {
			items = append(items, &model.Item{
				ID:       uuid.New().String(),
				ListID:   list.ID,
				RowIndex: i,
				RawData:  row,
				Status:   model.ItemStatusUploaded,
			})
		}

		err = st.WithTx(ctx, func(tx store.Store) error {
			if err := tx.CreateList(ctx, list); err != nil {
				return err
			}
			return tx.CreateItems(ctx, items)
		})
		if err != nil {
			return err
		}

		zap.L().Info("list uploaded",
			zap.String("list_id", list.ID),
			zap.String("name", list.Name),
			zap.Int("rows", len(items)),
		)
		cmd.Println(list.ID)
		return nil
	},
}

// readCSVLines returns the header line and every non-empty data row,
// verbatim. Rows are not parsed here; parsing is its own processing
// stage so malformed rows can be surfaced per item.
func readCSVLines(path string) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var header string
	var rows []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if header == "" {
			header = strings.TrimPrefix(line, "\ufeff")
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	if err := scanner.Err(); err != nil {
		return "", nil, eris.Wrapf(err, "read %s", path)
	}
	if header == "" {
		return "", nil, eris.Errorf("%s is empty", path)
	}
	return header, rows, nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "path to CSV file (required)")
	uploadCmd.Flags().StringVar(&uploadOrg, "org", "", "owning organization ID (required)")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "list name (required)")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", "", "list description")
	uploadCmd.Flags().StringVar(&uploadReplaces, "replaces", "", "ID of the list this upload replaces")
	_ = uploadCmd.MarkFlagRequired("file")
	_ = uploadCmd.MarkFlagRequired("org")
	_ = uploadCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(uploadCmd)
}
