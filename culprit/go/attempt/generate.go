package attempt

//go:generate mockery --name Runner --srcpkg=go.skia.org/culprit/culprit/go/attempt --output ./mocks --outpkg mocks
