package drive

import "github.com/cecil-the-coder/drivepool/pkg/types"

const (
	globalGraphAPI = "https://graph.microsoft.com/v1.0/"
	globalOAuthAPI = "https://login.microsoftonline.com/common/oauth2/v2.0/"
	chinaGraphAPI  = "https://microsoftgraph.chinacloudapi.cn/v1.0/"
	chinaOAuthAPI  = "https://login.chinacloudapi.cn/common/oauth2/v2.0/"

	// userAgent identifies as an ISV client, which Graph throttles more leniently
	userAgent    = "ISV|rclone.org|rclone/v1.55.1"
	acceptHeader = "application/json;odata.metadata=none"
)

// endpointsFor returns the Graph and OAuth base URLs for a region.
// Both end in a slash.
func endpointsFor(region types.Region) (graphAPI, oauthAPI string) {
	if region == types.RegionChina {
		return chinaGraphAPI, chinaOAuthAPI
	}
	return globalGraphAPI, globalOAuthAPI
}
