// Package export writes assessment rollups to spreadsheet files for
// review outside the engine.
package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

// XLSXExporter writes parcel assessments to an XLSX workbook with a
// parcel summary sheet and a per-card detail sheet.
type XLSXExporter struct {
	store store.Store
}

// NewXLSX creates an exporter backed by the given store.
func NewXLSX(st store.Store) *XLSXExporter {
	return &XLSXExporter{store: st}
}

// WriteParcels exports every parcel for one municipality and year to
// path, returning the number of parcels written.
func (e *XLSXExporter) WriteParcels(ctx context.Context, municipalityID string, year int, path string) (int, error) {
	parcels, err := e.store.ListParcelAssessments(ctx, municipalityID, year)
	if err != nil {
		return 0, eris.Wrap(err, "export: list parcels")
	}

	f := xlsx.NewFile()

	summary, err := f.AddSheet("Parcels")
	if err != nil {
		return 0, eris.Wrap(err, "export: add summary sheet")
	}
	addHeader(summary, "Property ID", "Cards", "Land Value", "Building Value", "Feature Value", "Total Value", "Last Calculated")

	cards, err := f.AddSheet("Cards")
	if err != nil {
		return 0, eris.Wrap(err, "export: add card sheet")
	}
	addHeader(cards, "Property ID", "Card", "Land Value", "Building Value", "Feature Value", "Total Value")

	for i := range parcels {
		p := &parcels[i]
		row := summary.AddRow()
		row.AddCell().SetString(p.PropertyID)
		row.AddCell().SetInt(len(p.CardAssessments))
		row.AddCell().SetFloat(p.Totals.LandValue)
		row.AddCell().SetFloat(p.Totals.BuildingValue)
		row.AddCell().SetFloat(p.Totals.FeatureValue)
		row.AddCell().SetFloat(p.Totals.TotalValue)
		row.AddCell().SetString(p.LastCalculated.Format("2006-01-02 15:04"))

		for _, c := range p.CardAssessments {
			cr := cards.AddRow()
			cr.AddCell().SetString(p.PropertyID)
			cr.AddCell().SetInt(c.CardNumber)
			cr.AddCell().SetFloat(c.LandValue)
			cr.AddCell().SetFloat(c.BuildingValue)
			cr.AddCell().SetFloat(c.FeatureValue)
			cr.AddCell().SetFloat(c.TotalValue)
		}
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("export: wrote parcel workbook",
		zap.String("municipality_id", municipalityID),
		zap.Int("year", year),
		zap.Int("parcels", len(parcels)),
		zap.String("path", path),
	)
	return len(parcels), nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}
