package catalog

import (
	"fmt"
	"strings"

	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type Packages struct {
	list []model.CoinPackage
	byID map[string]model.CoinPackage
}

func NewPackages(pkgs []model.CoinPackage) (*Packages, error) {
	p := &Packages{
		list: make([]model.CoinPackage, 0, len(pkgs)),
		byID: make(map[string]model.CoinPackage, len(pkgs)),
	}
	for _, pkg := range pkgs {
		id := strings.TrimSpace(pkg.PackageID)
		if id == "" {
			return nil, fmt.Errorf("coin package id is required")
		}
		if pkg.Coins <= 0 {
			return nil, fmt.Errorf("coin package %s: coins must be positive", id)
		}
		if _, dup := p.byID[id]; dup {
			return nil, fmt.Errorf("duplicate coin package id %s", id)
		}
		pkg.PackageID = id
		p.list = append(p.list, pkg)
		p.byID[id] = pkg
	}
	return p, nil
}

func (p *Packages) Get(packageID string) (model.CoinPackage, bool) {
	if p == nil {
		return model.CoinPackage{}, false
	}
	pkg, ok := p.byID[strings.TrimSpace(packageID)]
	return pkg, ok
}

func (p *Packages) List() []model.CoinPackage {
	if p == nil {
		return nil
	}
	return append([]model.CoinPackage(nil), p.list...)
}
