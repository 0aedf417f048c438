package handlers

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"placestore/src/types"
)

type HandlePlaces struct {
	Name     string
	Total    int
	Places   []types.Place
	Page     int
	LastPage int
	PrevPage int
	NextPage int
}

type Recommendation struct {
	Name   string           `json:"name"`
	Places []types.Neighbor `json:"places"`
}

// Loader is implemented by stores that can bulk import places.
type Loader interface {
	LoadData(r io.Reader) (int, error)
}

// Reindexer is implemented by stores that can rebuild their proximity index.
type Reindexer interface {
	Reindex() error
}

const placesTemplate = `{{.Name}}: {{.Total}} total, page {{.Page}} of {{.LastPage}}
{{range .Places}}#{{.ID}}	{{.Name}}	by {{.User}}	[{{index .Location 0}}, {{index .Location 1}}]	{{printf "%.2f" .Content.Average}}/{{.Content.MaxRating}} ({{len .Content.Ratings}} ratings)	{{ago .Content.Created}}
{{end}}{{if .PrevPage}}prev: {{.PrevPage}}{{end}}{{if .NextPage}}{{if .PrevPage}}	{{end}}next: {{.NextPage}}{{end}}
`

func LoadTemplate() (*template.Template, error) {
	return template.New("places").Funcs(template.FuncMap{
		"ago": func(unix int64) string { return humanize.Time(time.Unix(unix, 0)) },
	}).Parse(placesTemplate)
}

// parsePage turns a 1-based page argument into a page number. Anything that
// is not a positive integer means the first page.
func parsePage(pageStr string) int {
	page, err := cast.ToIntE(strings.TrimSpace(pageStr))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.Errorf("invalid place id %q", s)
	}
	return id, nil
}

func handleGetPlaces(client types.DataStore, pageStr string) (*HandlePlaces, error) {
	page := parsePage(pageStr)
	pageSize := client.Limit()

	places, err := client.List((page - 1) * pageSize)
	if err != nil {
		return nil, err
	}
	total, err := client.Count()
	if err != nil {
		return nil, err
	}

	lastPage := max((total+pageSize-1)/pageSize, 1)

	data := &HandlePlaces{
		Name:     "Places",
		Places:   places,
		Total:    total,
		Page:     page,
		LastPage: lastPage,
	}

	if page > 1 {
		data.PrevPage = page - 1
	}

	if page < lastPage {
		data.NextPage = page + 1
	}

	return data, nil
}

func HandleGetPlacesText(w io.Writer, client types.DataStore, tmpl *template.Template, pageStr string) error {
	data, err := handleGetPlaces(client, pageStr)
	if err != nil {
		return err
	}
	return errors.Wrap(tmpl.Execute(w, data), "rendering places")
}

func HandleGetPlacesJSON(w io.Writer, client types.DataStore, pageStr string) error {
	data, err := handleGetPlaces(client, pageStr)
	if err != nil {
		return err
	}
	return writeJSON(w, data)
}

func HandleCreate(w io.Writer, client types.DataStore, body []byte) error {
	payload, err := types.ParsePayload(body)
	if err != nil {
		return err
	}
	place, err := client.Create(payload)
	if err != nil {
		return err
	}
	return writeJSON(w, place)
}

func HandleGet(w io.Writer, client types.DataStore, idStr string) error {
	id, err := ParseID(idStr)
	if err != nil {
		return err
	}
	place, err := client.Get(id)
	if err != nil {
		return err
	}
	return writeJSON(w, place)
}

func HandleUpdate(w io.Writer, client types.DataStore, idStr string, body []byte) error {
	id, err := ParseID(idStr)
	if err != nil {
		return err
	}
	payload, err := types.ParsePayload(body)
	if err != nil {
		return err
	}
	place, err := client.Update(payload, id)
	if err != nil {
		return err
	}
	return writeJSON(w, place)
}

func HandleDelete(w io.Writer, client types.DataStore, idStr string) error {
	id, err := ParseID(idStr)
	if err != nil {
		return err
	}
	if err := client.Delete(id); err != nil {
		return err
	}
	return writeJSON(w, map[string]int64{"deleted": id})
}

// HandleRecommend writes the places nearest to the [lat, lon] in locArg,
// either as JSON or as a GeoJSON feature collection.
func HandleRecommend(w io.Writer, client types.DataStore, locArg string, asGeoJSON bool) error {
	loc, err := types.ParseLocation([]byte(locArg))
	if err != nil {
		return err
	}
	places, err := client.Nearest(loc)
	if err != nil {
		return err
	}
	if asGeoJSON {
		return writeGeoJSON(w, places)
	}
	return writeJSON(w, Recommendation{
		Name:   "Recommendation",
		Places: places,
	})
}

func HandleImport(w io.Writer, client Loader, r io.Reader) error {
	n, err := client.LoadData(r)
	if err != nil {
		return errors.Wrapf(err, "imported %d places before failing", n)
	}
	return writeJSON(w, map[string]int{"imported": n})
}

func HandleReindex(w io.Writer, client Reindexer) error {
	if err := client.Reindex(); err != nil {
		return err
	}
	return writeJSON(w, map[string]bool{"reindexed": true})
}

func writeGeoJSON(w io.Writer, places []types.Neighbor) error {
	fc := geojson.NewFeatureCollection()
	for _, p := range places {
		// GeoJSON positions are [lon, lat]
		f := geojson.NewPointFeature([]float64{p.Location.Lon(), p.Location.Lat()})
		f.ID = p.ID
		f.SetProperty("distance", p.Distance)
		fc.AddFeature(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding geojson")
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encoding response")
}
