package api

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

type meta struct {
	TotalRecords uint64  `json:"totalRecords"`
	Offset       *uint64 `json:"offset,omitempty"`
	Limit        *uint64 `json:"limit,omitempty"`
	Count        uint64  `json:"count"`
}

type links struct {
	Self  *string `json:"self,omitempty"`
	First *string `json:"first,omitempty"`
	Prev  *string `json:"prev,omitempty"`
	Next  *string `json:"next,omitempty"`
	Last  *string `json:"last,omitempty"`
}

// ApiResponse is the envelope every operator-facing JSON endpoint returns.
type ApiResponse struct {
	Meta  *meta  `json:"meta,omitempty"`
	Data  any    `json:"data"`
	Links *links `json:"links,omitempty"`
}

func (r ApiResponse) Byte() []byte {
	b, _ := json.Marshal(r)
	return b
}

// collectionResponse wraps a types.Collection[T] page as an ApiResponse
// with pagination metadata populated from the collection itself.
func collectionResponse[T any](c types.Collection[T]) ApiResponse {
	offset, limit := c.Offset, c.Limit
	return ApiResponse{
		Meta: &meta{TotalRecords: c.TotalCount, Offset: &offset, Limit: &limit, Count: c.Count},
		Data: c.Data,
	}
}

func writeCsvWithDevices(w io.Writer, devices []types.Device) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"device_id", "tenant_id", "device_type", "capabilities", "firmware_version", "status", "policy_id", "last_seen_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, d := range devices {
		caps := ""
		for i, c := range d.Capabilities {
			if i > 0 {
				caps += ","
			}
			caps += string(c)
		}
		row := []string{
			d.DeviceID, d.TenantID, string(d.DeviceType), caps, d.FirmwareVersion,
			string(d.Status), d.PolicyID, d.LastSeenAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
