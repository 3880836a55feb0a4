package change

//go:generate mockery --name Resolver --srcpkg=go.skia.org/culprit/culprit/go/change --output ./mocks --outpkg mocks
