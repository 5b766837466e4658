package docjohn

// Version de la librería. Se pisa en build con:
//
//	-ldflags "-X github.com/dropDatabas3/docjohn.Version=v1.2.3"
var Version = "dev"
