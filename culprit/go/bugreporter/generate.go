package bugreporter

//go:generate mockery --name Reporter --srcpkg=go.skia.org/culprit/culprit/go/bugreporter --output ./mocks --outpkg mocks
