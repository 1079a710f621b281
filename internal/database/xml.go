package database

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// XML shapes for the relevant slice of DbXmlInfo.xml. The export carries
// far more (devices, keypads, timeclocks); only the area/output tree is
// decoded and the rest is skipped by the decoder.
type xmlExport struct {
	Areas xmlAreaList `xml:"Areas"`
}

type xmlAreaList struct {
	Areas []xmlArea `xml:"Area"`
}

type xmlArea struct {
	IntegrationID string      `xml:"IntegrationID,attr"`
	Name          string      `xml:"Name,attr"`
	SortOrder     string      `xml:"SortOrder,attr"`
	Outputs       xmlOutputs  `xml:"Outputs"`
	Areas         xmlAreaList `xml:"Areas"`
}

type xmlOutputs struct {
	Outputs []xmlOutput `xml:"Output"`
}

type xmlOutput struct {
	IntegrationID string `xml:"IntegrationID,attr"`
	Name          string `xml:"Name,attr"`
	OutputType    string `xml:"OutputType,attr"`
	SortOrder     string `xml:"SortOrder,attr"`
}

// parseExport decodes the XML export into the flat entity list, applying
// the cleanup filters to each entity as it is built. Paths are assembled
// during the walk so filtered names flow into descendants' paths.
func parseExport(data []byte, filters []Filter) ([]Entity, error) {
	var export xmlExport
	if err := xml.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("database: parsing XML export: %w", err)
	}
	if len(export.Areas.Areas) == 0 {
		return nil, fmt.Errorf("database: XML export has no areas")
	}

	w := &exportWalker{filters: filters}
	w.walk(export.Areas.Areas, "", nil)
	return w.entities, nil
}

type exportWalker struct {
	filters  []Filter
	entities []Entity
}

func (w *exportWalker) walk(areas []xmlArea, parentKey string, parentPath []string) {
	for i, area := range areas {
		e := Entity{
			DBID:       nodeID(area.IntegrationID, parentKey, "area", i),
			IID:        atoiOrZero(area.IntegrationID),
			Name:       area.Name,
			Type:       EntityArea,
			SortOrder:  atoiOrZero(area.SortOrder),
			ParentDBID: parentKey,
		}
		e = applyFilters(e, w.filters)

		path := append(append([]string{}, parentPath...), e.Name)
		e.Path = strings.Join(path, " / ")
		w.entities = append(w.entities, e)

		for j, out := range area.Outputs.Outputs {
			o := Entity{
				DBID:       nodeID(out.IntegrationID, e.DBID, "output", j),
				IID:        atoiOrZero(out.IntegrationID),
				Name:       out.Name,
				Type:       EntityOutput,
				Subtype:    out.OutputType,
				SortOrder:  atoiOrZero(out.SortOrder),
				ParentDBID: e.DBID,
			}
			o = applyFilters(o, w.filters)
			o.Path = strings.Join(append(path, o.Name), " / ")
			w.entities = append(w.entities, o)
		}

		w.walk(area.Areas.Areas, e.DBID, path)
	}
}

// nodeID returns the entity's stable identifier: the integration ID when
// the export assigns one, otherwise a folded hash of the node's tree
// position so unaddressable areas still get a stable key.
func nodeID(iid, parentKey, kind string, index int) string {
	if iid != "" && iid != "0" {
		return iid
	}
	return foldHash(fmt.Sprintf("%s/%s[%d]", parentKey, kind, index))
}

// foldHash compresses a sha256 digest to 8 bytes by xor-folding its four
// quarters, hex encoded. Collision resistance is ample for a few
// thousand tree positions, and the short form keeps ids readable.
func foldHash(s string) string {
	digest := sha256.Sum256([]byte(s))
	var folded [8]byte
	for i := 0; i < 8; i++ {
		folded[i] = digest[i] ^ digest[i+8] ^ digest[i+16] ^ digest[i+24]
	}
	return hex.EncodeToString(folded[:])
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
