package pe

import (
	"fmt"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

// LoadResources parses the resource directory of the image into a manager.
// An image without resources yields an empty manager.
func LoadResources(r *Reader, opts ...rsrc.ManagerOption) (*rsrc.Manager, error) {
	sec, err := r.ResourceSection()
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return rsrc.NewManager(rsrc.NewTree(), opts...), nil
	}

	m, err := rsrc.Load(sec.Data, sec.RVA, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析资源目录失败: %w", err)
	}
	return m, nil
}
